package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scenestudio/internal/domain"
)

type QwenOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type QwenClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

var _ Editor = (*QwenClient)(nil)

func NewQwenClient(opts QwenOptions) *QwenClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-edit"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &QwenClient{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

type qwenContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type qwenMessage struct {
	Role    string        `json:"role"`
	Content []qwenContent `json:"content"`
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []qwenMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		NegativePrompt string `json:"negative_prompt,omitempty"`
		Watermark      bool   `json:"watermark"`
		Seed           *int   `json:"seed,omitempty"`
	} `json:"parameters"`
}

type qwenResp struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []map[string]string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EditOnce runs one edit and returns the collaborator-hosted result URL.
func (c *QwenClient) EditOnce(ctx context.Context, source SourceImage, instruction string, watermark bool, negative string, seed *int) (string, error) {
	if c == nil {
		return "", errors.New("qwen client not configured")
	}
	if c.token == "" {
		return "", errors.New("qwen: API key is missing")
	}
	image, err := imageRef(source)
	if err != nil {
		return "", err
	}
	var payload qwenRequest
	payload.Model = c.model
	payload.Input.Messages = []qwenMessage{{
		Role:    "user",
		Content: []qwenContent{{Image: image}, {Text: instruction}},
	}}
	payload.Parameters.Watermark = watermark
	if negative = strings.TrimSpace(negative); negative != "" {
		payload.Parameters.NegativePrompt = negative
	}
	payload.Parameters.Seed = seed
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: qwen: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	var out qwenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("%w: qwen http %d", domain.ErrProviderFailure, resp.StatusCode)
		}
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Message != "" {
			return "", fmt.Errorf("%w: qwen error: %s (%s)", domain.ErrProviderFailure, out.Message, out.Code)
		}
		return "", fmt.Errorf("%w: qwen http %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	if len(out.Output.Choices) == 0 || len(out.Output.Choices[0].Message.Content) == 0 {
		return "", fmt.Errorf("%w: qwen: empty response", domain.ErrProviderFailure)
	}
	url := out.Output.Choices[0].Message.Content[0]["image"]
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("%w: qwen: missing image url", domain.ErrProviderFailure)
	}
	return url, nil
}

// imageRef returns the URL or a data URI for source.
func imageRef(source SourceImage) (string, error) {
	if len(source.Data) > 0 {
		mime := strings.TrimSpace(source.MIMEType)
		if mime == "" {
			mime = http.DetectContentType(source.Data)
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(source.Data), nil
	}
	if url := strings.TrimSpace(source.URL); url != "" {
		return url, nil
	}
	return "", errors.New("qwen: image url or data required")
}
