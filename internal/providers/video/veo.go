package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scenestudio/internal/domain"
)

const (
	defaultVeoBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultVeoModel   = "veo-3.0-fast-generate-001"
	maxVideoBytes     = 256 << 20
)

type VeoOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// VeoClient drives Veo through the Gemini API long-running operation
// endpoints.
type VeoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ Generator = (*VeoClient)(nil)

func NewVeoClient(opts VeoOptions) *VeoClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultVeoBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultVeoModel
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &VeoClient{
		httpClient: client,
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

func (c *VeoClient) Model() string {
	return c.model
}

type veoInstance struct {
	Prompt string `json:"prompt"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	GenerateAudio   bool   `json:"generateAudio"`
}

type veoSubmitRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type veoOperation struct {
	Name     string    `json:"name"`
	Done     bool      `json:"done"`
	Error    *veoError `json:"error,omitempty"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// Submit starts one generation and returns the operation name.
func (c *VeoClient) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key is missing", ErrUnauthorized)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt required", domain.ErrInvalidRequest)
	}
	payload := veoSubmitRequest{
		Instances: []veoInstance{{Prompt: prompt}},
		Parameters: veoParameters{
			AspectRatio:     req.AspectRatio,
			DurationSeconds: req.DurationSeconds,
			GenerateAudio:   req.Audio,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	var op veoOperation
	if err := c.do(httpReq, &op); err != nil {
		return "", err
	}
	return strings.TrimSpace(op.Name), nil
}

// Status polls an operation. A finished operation's video is downloaded so
// the caller never needs the API key to fetch it.
func (c *VeoClient) Status(ctx context.Context, handle string) (Status, error) {
	handle = strings.Trim(strings.TrimSpace(handle), "/")
	if handle == "" {
		return Status{}, fmt.Errorf("%w: empty handle", ErrNotFound)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+handle, nil)
	if err != nil {
		return Status{}, err
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	var op veoOperation
	if err := c.do(httpReq, &op); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{State: StateExpired, Reason: "operation not found"}, nil
		}
		return Status{}, err
	}
	if !op.Done {
		return Status{State: StatePending}, nil
	}
	if op.Error != nil {
		return Status{State: StateFailed, Reason: op.Error.Message}, nil
	}
	resp := op.Response.GenerateVideoResponse
	if len(resp.GeneratedSamples) == 0 || strings.TrimSpace(resp.GeneratedSamples[0].Video.URI) == "" {
		reason := "no video returned"
		if len(resp.RAIMediaFilteredReasons) > 0 {
			reason = strings.Join(resp.RAIMediaFilteredReasons, "; ")
		}
		return Status{State: StateFailed, Reason: reason}, nil
	}
	uri := strings.TrimSpace(resp.GeneratedSamples[0].Video.URI)
	data, mime, err := c.download(ctx, uri)
	if err != nil {
		return Status{}, err
	}
	return Status{State: StateCompleted, VideoURL: uri, Data: data, MIME: mime}, nil
}

func (c *VeoClient) download(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("veo: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("%w: veo download http %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes))
	if err != nil {
		return nil, "", fmt.Errorf("veo: read video: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return data, mime, nil
}

func (c *VeoClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error veoError `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		msg := envelope.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%w: %s", ErrBillingRequired, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		default:
			return fmt.Errorf("%w: veo http %d: %s", domain.ErrProviderFailure, resp.StatusCode, msg)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("veo: decode response: %w", err)
	}
	return nil
}
