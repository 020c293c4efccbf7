// Package render talks to the template rendering collaborator that stitches
// generated scenes into a finished video.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scenestudio/internal/domain"
)

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Clip is one source video placed into the template.
type Clip struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

type Request struct {
	TemplateID    string            `json:"template_id"`
	Clips         []Clip            `json:"clips"`
	Modifications map[string]string `json:"modifications,omitempty"`
}

// Render is the collaborator's view of one render job.
type Render struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error_message,omitempty"`
}

// Done reports whether the render reached a final state.
func (r Render) Done() bool {
	return r.Status == "succeeded" || r.Status == "failed"
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.creatomate.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: client, baseURL: base, apiKey: strings.TrimSpace(opts.APIKey)}
}

type submitPayload struct {
	TemplateID    string         `json:"template_id"`
	Modifications map[string]any `json:"modifications"`
}

// Submit starts a render. Clips fill the template's Video-1..Video-N slots.
func (c *Client) Submit(ctx context.Context, req Request) (Render, error) {
	if c.apiKey == "" {
		return Render{}, errors.New("render: API key is missing")
	}
	if strings.TrimSpace(req.TemplateID) == "" || len(req.Clips) == 0 {
		return Render{}, fmt.Errorf("%w: template and clips are required", domain.ErrInvalidRequest)
	}
	mods := make(map[string]any, len(req.Clips)+len(req.Modifications))
	for k, v := range req.Modifications {
		mods[k] = v
	}
	for i, clip := range req.Clips {
		mods[fmt.Sprintf("Video-%d.source", i+1)] = clip.URL
		if clip.DurationSeconds > 0 {
			mods[fmt.Sprintf("Video-%d.duration", i+1)] = clip.DurationSeconds
		}
	}
	body, err := json.Marshal(submitPayload{TemplateID: req.TemplateID, Modifications: mods})
	if err != nil {
		return Render{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/renders", bytes.NewReader(body))
	if err != nil {
		return Render{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	var out []Render
	if err := c.do(httpReq, &out); err != nil {
		return Render{}, err
	}
	if len(out) == 0 || out[0].ID == "" {
		return Render{}, fmt.Errorf("%w: render: empty response", domain.ErrProviderFailure)
	}
	return out[0], nil
}

func (c *Client) Get(ctx context.Context, id string) (Render, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Render{}, domain.ErrNotFound
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/renders/"+url.PathEscape(id), nil)
	if err != nil {
		return Render{}, err
	}
	c.authorize(httpReq)
	var out Render
	if err := c.do(httpReq, &out); err != nil {
		return Render{}, err
	}
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: render: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Message != "" {
			return fmt.Errorf("%w: render http %d: %s", domain.ErrProviderFailure, resp.StatusCode, e.Message)
		}
		return fmt.Errorf("%w: render http %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("render: decode response: %w", err)
	}
	return nil
}
