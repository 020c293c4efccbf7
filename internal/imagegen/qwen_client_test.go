package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scenestudio/internal/domain"
)

func writeQwenImage(w http.ResponseWriter, url string) {
	_, _ = w.Write([]byte(`{"output":{"choices":[{"message":{"content":[{"image":"` + url + `"}]}}]}}`))
}

func TestQwenClientEditOnce(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		var payload qwenRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.Model != "qwen-image-edit" {
			t.Fatalf("unexpected model: %s", payload.Model)
		}
		if len(payload.Input.Messages) != 1 {
			t.Fatalf("unexpected messages length: %d", len(payload.Input.Messages))
		}
		contents := payload.Input.Messages[0].Content
		if len(contents) != 2 {
			t.Fatalf("unexpected content length: %d", len(contents))
		}
		if contents[0].Image != "https://example.com/in.png" {
			t.Fatalf("image content mismatch: %+v", contents[0])
		}
		if got := strings.TrimSpace(contents[1].Text); got != "do something" {
			t.Fatalf("instruction mismatch: %s", got)
		}
		writeQwenImage(w, "https://example.com/out.png")
	}))
	defer ts.Close()

	client := NewQwenClient(QwenOptions{APIKey: "test-key", BaseURL: ts.URL})
	got, err := client.EditOnce(context.Background(), SourceImage{URL: "https://example.com/in.png"}, "do something", true, "", nil)
	if err != nil {
		t.Fatalf("EditOnce error: %v", err)
	}
	if got != "https://example.com/out.png" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestQwenClientMissingKey(t *testing.T) {
	client := NewQwenClient(QwenOptions{})
	if _, err := client.EditOnce(context.Background(), SourceImage{URL: "https://example.com/in.png"}, "instr", false, "", nil); err == nil {
		t.Fatalf("expected error when api key missing")
	}
}

func TestQwenClientUsesBytesPayload(t *testing.T) {
	var captured qwenRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		writeQwenImage(w, "https://example.com/out.png")
	}))
	defer ts.Close()

	client := NewQwenClient(QwenOptions{APIKey: "test-key", BaseURL: ts.URL})
	data := []byte{0x89, 0x50, 0x4e, 0x47}
	_, err := client.EditOnce(context.Background(), SourceImage{Data: data, MIMEType: "image/png", Name: "sample.png"}, "instr", false, "", nil)
	if err != nil {
		t.Fatalf("EditOnce error: %v", err)
	}
	if len(captured.Input.Messages) == 0 {
		t.Fatalf("no messages captured")
	}
	if got := captured.Input.Messages[0].Content[0].Image; !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("expected data uri, got %q", got)
	}
}

func TestQwenClientProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"Throttling","message":"slow down"}`))
	}))
	defer ts.Close()

	client := NewQwenClient(QwenOptions{APIKey: "k", BaseURL: ts.URL})
	_, err := client.EditOnce(context.Background(), SourceImage{URL: "https://example.com/in.png"}, "instr", false, "", nil)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("expected collaborator message, got %v", err)
	}
}
