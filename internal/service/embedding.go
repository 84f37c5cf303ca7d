package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// EmbedPurpose selects the encoder side of an asymmetric embedding
// model.
type EmbedPurpose int

const (
	// EmbedPurposeQuery encodes a search query against text passages.
	EmbedPurposeQuery EmbedPurpose = iota
	// EmbedPurposePassage encodes stored document content.
	EmbedPurposePassage
	// EmbedPurposeCrossModal encodes without a retrieval task so the
	// vector lands in the model's shared text/image space. Used to
	// query the image space with a text string.
	EmbedPurposeCrossModal
)

func (p EmbedPurpose) task() string {
	switch p {
	case EmbedPurposeQuery:
		return "retrieval.query"
	case EmbedPurposePassage:
		return "retrieval.passage"
	default:
		return ""
	}
}

// EmbeddingProvider turns text or image bytes into fixed-dimension
// vectors. Implementations must return L2-normalized vectors of the
// configured dimension for every input.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string, purpose EmbedPurpose) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte, purpose EmbedPurpose) ([]float32, error)
}

// EmbeddingConfig holds configuration for the Jina embedding client.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// JinaEmbedder calls the Jina embeddings API with a CLIP-family model
// that encodes text and images into one shared vector space.
type JinaEmbedder struct {
	client     *resty.Client
	baseURL    string
	model      string
	dimensions int
}

// NewJinaEmbedder creates a new JinaEmbedder.
func NewJinaEmbedder(cfg *EmbeddingConfig) *JinaEmbedder {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	return &JinaEmbedder{
		client:     client,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Jina API request/response structures
type jinaInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // base64-encoded bytes
}

type jinaRequest struct {
	Model         string      `json:"model"`
	Task          string      `json:"task,omitempty"`
	Dimensions    int         `json:"dimensions,omitempty"`
	Normalized    bool        `json:"normalized"`
	Input         []jinaInput `json:"input"`
	EmbeddingType string      `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
}

// EmbedText generates an embedding for a single text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - text: input text.
//   - purpose: encoder side to use.
// Returns:
//   - []float32: normalized vector of the configured dimension.
//   - error: non-nil on API failure or dimension mismatch.
func (s *JinaEmbedder) EmbedText(ctx context.Context, text string, purpose EmbedPurpose) ([]float32, error) {
	return s.embed(ctx, jinaInput{Text: text}, purpose)
}

// EmbedImage generates an embedding for raw image bytes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - image: raw image bytes (jpeg/png/webp).
//   - purpose: encoder side to use.
// Returns:
//   - []float32: normalized vector of the configured dimension.
//   - error: non-nil on API failure or dimension mismatch.
func (s *JinaEmbedder) EmbedImage(ctx context.Context, image []byte, purpose EmbedPurpose) ([]float32, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	return s.embed(ctx, jinaInput{Image: encoded}, purpose)
}

func (s *JinaEmbedder) embed(ctx context.Context, input jinaInput, purpose EmbedPurpose) ([]float32, error) {
	req := jinaRequest{
		Model:         s.model,
		Task:          purpose.task(),
		Dimensions:    s.dimensions,
		Normalized:    true,
		Input:         []jinaInput{input},
		EmbeddingType: "float",
	}

	var resp jinaResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.baseURL)

	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		// resty only unmarshals SetResult on 2xx; parse the error body
		// ourselves to surface the API's detail message.
		var apiErr jinaResponse
		if err := json.Unmarshal(httpResp.Body(), &apiErr); err == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("Jina API error: status %d: %s", httpResp.StatusCode(), apiErr.Detail)
		}
		return nil, fmt.Errorf("Jina API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("unexpected embedding dimension: got %d, expected %d", len(embedding), s.dimensions)
	}
	return embedding, nil
}
