package docai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/infrastructure/resilience"
)

// Client talks to the document-AI service: synchronous text detection on a
// page image and label scoring over plain text. Both are black boxes behind
// an HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type Detector struct {
	client *Client
}

func NewDetector(client *Client) *Detector {
	return &Detector{client: client}
}

func (d *Detector) DetectText(ctx context.Context, image []byte) ([]domain.TextBlock, error) {
	request := map[string]any{
		"image": image,
	}

	var response struct {
		Blocks []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"blocks"`
	}
	if err := d.client.postJSON(ctx, "/v1/detect-text", request, &response, "detect-text"); err != nil {
		return nil, err
	}

	blocks := make([]domain.TextBlock, 0, len(response.Blocks))
	for _, b := range response.Blocks {
		blocks = append(blocks, domain.TextBlock{BlockType: b.Type, Text: b.Text})
	}
	return blocks, nil
}

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// Classify returns label scores ranked best match first, as the service
// reports them.
func (c *Classifier) Classify(ctx context.Context, text string) ([]domain.LabelScore, error) {
	request := map[string]any{
		"text": text,
	}

	var response struct {
		Classes []struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
		} `json:"classes"`
	}
	if err := c.client.postJSON(ctx, "/v1/classify", request, &response, "classify"); err != nil {
		return nil, err
	}

	scores := make([]domain.LabelScore, 0, len(response.Classes))
	for _, cls := range response.Classes {
		scores = append(scores, domain.LabelScore{Label: domain.Label(cls.Name), Score: cls.Score})
	}
	return scores, nil
}
