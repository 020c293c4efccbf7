package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"scenestudio/internal/domain"
)

func TestClientSubmit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/renders" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer rk" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		var payload submitPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.TemplateID != "tpl" {
			t.Fatalf("unexpected template: %s", payload.TemplateID)
		}
		if payload.Modifications["Video-2.source"] != "https://cdn.test/b.mp4" {
			t.Fatalf("unexpected modifications: %+v", payload.Modifications)
		}
		if payload.Modifications["Title"] != "Promo" {
			t.Fatalf("custom modification lost: %+v", payload.Modifications)
		}
		_, _ = w.Write([]byte(`[{"id":"r1","status":"planned"}]`))
	}))
	defer ts.Close()

	c := NewClient(Options{BaseURL: ts.URL, APIKey: "rk"})
	got, err := c.Submit(context.Background(), Request{
		TemplateID:    "tpl",
		Clips:         []Clip{{URL: "https://cdn.test/a.mp4"}, {URL: "https://cdn.test/b.mp4", DurationSeconds: 8}},
		Modifications: map[string]string{"Title": "Promo"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.ID != "r1" || got.Done() {
		t.Fatalf("unexpected render: %+v", got)
	}
}

func TestClientGet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/renders/r1":
			_, _ = w.Write([]byte(`{"id":"r1","status":"succeeded","url":"https://cdn.test/out.mp4"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := NewClient(Options{BaseURL: ts.URL, APIKey: "rk"})
	got, err := c.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Done() || got.URL == "" {
		t.Fatalf("unexpected render: %+v", got)
	}
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientSubmitValidation(t *testing.T) {
	c := NewClient(Options{APIKey: "rk"})
	if _, err := c.Submit(context.Background(), Request{TemplateID: "tpl"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := NewClient(Options{}).Submit(context.Background(), Request{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
