// Package zip bundles library artifacts into a downloadable archive.
package zip

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"
)

// ManifestName is the archive entry describing every bundled asset.
const ManifestName = "manifest.json"

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// Write streams assets into w as a zip archive. When manifest is non-nil it
// is encoded as JSON under ManifestName. Duplicate filenames are rejected.
func Write(w io.Writer, assets []Asset, manifest any) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		name := path.Clean("/" + asset.Filename)[1:]
		if name == "" || name == ManifestName {
			return fmt.Errorf("zip: invalid filename %q", asset.Filename)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("zip: duplicate filename %q", name)
		}
		seen[name] = struct{}{}

		hdr := &zip.FileHeader{Name: name, Method: zip.Store, Modified: asset.Modified}
		f, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := f.Write(asset.Data); err != nil {
			return err
		}
	}
	if manifest != nil {
		f, err := zw.Create(ManifestName)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(manifest); err != nil {
			return err
		}
	}
	return zw.Close()
}
