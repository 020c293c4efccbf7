package video

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

func TestVeoClientSubmit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Fatalf("unexpected api key header: %s", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/models/veo-test:predictLongRunning") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var payload veoSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(payload.Instances) != 1 || payload.Instances[0].Prompt != "a cat surfing" {
			t.Fatalf("unexpected instances: %+v", payload.Instances)
		}
		if payload.Parameters.DurationSeconds != 8 || payload.Parameters.AspectRatio != "9:16" || !payload.Parameters.GenerateAudio {
			t.Fatalf("unexpected parameters: %+v", payload.Parameters)
		}
		_, _ = w.Write([]byte(`{"name":"models/veo-test/operations/op-1"}`))
	}))
	defer ts.Close()

	client := NewVeoClient(VeoOptions{BaseURL: ts.URL, APIKey: "test-key", Model: "veo-test"})
	handle, err := client.Submit(context.Background(), domain.GenerationRequest{
		Prompt: "a cat surfing", DurationSeconds: 8, AspectRatio: "9:16", Audio: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if handle != "models/veo-test/operations/op-1" {
		t.Fatalf("unexpected handle: %s", handle)
	}
}

func TestVeoClientSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{status: http.StatusUnauthorized, want: ErrUnauthorized},
		{status: http.StatusForbidden, want: ErrUnauthorized},
		{status: http.StatusPaymentRequired, want: ErrBillingRequired},
		{status: http.StatusInternalServerError, want: domain.ErrProviderFailure},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":1,"message":"nope"}}`))
			}))
			defer ts.Close()

			client := NewVeoClient(VeoOptions{BaseURL: ts.URL, APIKey: "k"})
			_, err := client.Submit(context.Background(), domain.GenerationRequest{Prompt: "x"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVeoClientMissingKeyIsFatal(t *testing.T) {
	client := NewVeoClient(VeoOptions{})
	_, err := client.Submit(context.Background(), domain.GenerationRequest{Prompt: "x"})
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestVeoClientStatus(t *testing.T) {
	var base string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/operations/pending":
			_, _ = w.Write([]byte(`{"name":"operations/pending","done":false}`))
		case "/operations/failed":
			_, _ = w.Write([]byte(`{"done":true,"error":{"code":3,"message":"blocked"}}`))
		case "/operations/filtered":
			_, _ = w.Write([]byte(`{"done":true,"response":{"generateVideoResponse":{"raiMediaFilteredReasons":["unsafe"]}}}`))
		case "/operations/done":
			_, _ = w.Write([]byte(`{"done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"` + base + `/files/v1"}}]}}}`))
		case "/files/v1":
			if r.Header.Get("x-goog-api-key") != "k" {
				t.Fatalf("download must carry api key")
			}
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()
	base = ts.URL

	client := NewVeoClient(VeoOptions{BaseURL: ts.URL, APIKey: "k"})
	ctx := context.Background()

	tests := []struct {
		handle string
		want   State
		reason string
	}{
		{handle: "operations/pending", want: StatePending},
		{handle: "operations/failed", want: StateFailed, reason: "blocked"},
		{handle: "operations/filtered", want: StateFailed, reason: "unsafe"},
		{handle: "operations/gone", want: StateExpired},
		{handle: "operations/done", want: StateCompleted},
	}
	for _, tc := range tests {
		st, err := client.Status(ctx, tc.handle)
		if err != nil {
			t.Fatalf("%s: status error: %v", tc.handle, err)
		}
		if st.State != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.handle, tc.want, st.State)
		}
		if tc.reason != "" && st.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %q", tc.handle, tc.reason, st.Reason)
		}
		if tc.want == StateCompleted && (string(st.Data) != "mp4-bytes" || st.MIME != "video/mp4") {
			t.Fatalf("unexpected download: %q %s", st.Data, st.MIME)
		}
	}
}

func TestSyntheticCompletesAfterPolls(t *testing.T) {
	g := NewSynthetic(2)
	ctx := context.Background()
	ok, err := g.Submit(ctx, domain.GenerationRequest{Prompt: "scene"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	bad, _ := g.Submit(ctx, domain.GenerationRequest{Prompt: "scene #fail"})

	if st, _ := g.Status(ctx, ok); st.State != StatePending {
		t.Fatalf("first poll should be pending, got %s", st.State)
	}
	if st, _ := g.Status(ctx, ok); st.State != StateCompleted || len(st.Data) == 0 {
		t.Fatalf("second poll should complete, got %+v", st)
	}
	g.Status(ctx, bad)
	if st, _ := g.Status(ctx, bad); st.State != StateFailed {
		t.Fatalf("expected failed, got %s", st.State)
	}
	if st, _ := g.Status(ctx, "operations/unknown"); st.State != StateExpired {
		t.Fatalf("expected expired, got %s", st.State)
	}
}
