package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestWriteIncludesManifest(t *testing.T) {
	var buf bytes.Buffer
	assets := []Asset{
		{Filename: "batch/scene-00.mp4", Data: []byte("a")},
		{Filename: "../escape/scene-01.mp4", Data: []byte("bb")},
	}
	if err := Write(&buf, assets, map[string]int{"count": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	if _, ok := names["batch/scene-00.mp4"]; !ok {
		t.Fatalf("missing first asset: %v", names)
	}
	if _, ok := names["escape/scene-01.mp4"]; !ok {
		t.Fatalf("path traversal not cleaned: %v", names)
	}
	mf, ok := names[ManifestName]
	if !ok {
		t.Fatalf("missing manifest")
	}
	rc, err := mf.Open()
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil || got["count"] != 2 {
		t.Fatalf("manifest = %s (%v)", raw, err)
	}
}

func TestWriteRejectsDuplicates(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Asset{{Filename: "a.mp4"}, {Filename: "./a.mp4"}}, nil)
	if err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := Write(&buf, []Asset{{Filename: ManifestName}}, nil); err == nil {
		t.Fatalf("expected reserved name error")
	}
}
