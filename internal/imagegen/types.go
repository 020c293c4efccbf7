package imagegen

import "context"

// SourceImage is the photo being edited: a fetchable URL or inline bytes.
type SourceImage struct {
	URL      string
	Data     []byte
	MIMEType string
	Name     string
}

// Request describes one image edit job. Quantity images are produced and
// each one costs a credit.
type Request struct {
	Quantity    int    `json:"quantity"`
	AspectRatio string `json:"aspect_ratio"`
	Locale      string `json:"-"`

	Prompt struct {
		Title        string `json:"title"`
		ProductType  string `json:"product_type"`
		Style        string `json:"style"`
		Background   string `json:"background"`
		Instructions string `json:"instructions"`
		Negative     string `json:"negative"`
		Watermark    bool   `json:"watermark"`
		Seed         *int   `json:"seed,omitempty"`
		SourceURL    string `json:"source_url"`
	} `json:"prompt"`
}

// Editor is the image edit collaborator.
type Editor interface {
	EditOnce(ctx context.Context, source SourceImage, instruction string, watermark bool, negative string, seed *int) (string, error)
}
