package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/memexpert/memexpert/internal/logger"
)

const metadataAttempts = 3

const metadataSystemPrompt = `You are a content editor for a meme catalog. ` +
	`Given a meme image, produce catalog metadata in Russian: a short title, ` +
	`a URL-safe latin slug, a one-line caption, a longer description of what ` +
	`the meme depicts and when it is used, and the exact text written on the ` +
	`image (empty string if none). Always respond via the set_meme_metadata tool.`

// GeneratedMetadata is the catalog metadata produced from a meme image.
type GeneratedMetadata struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Caption     string `json:"caption"`
	Description string `json:"description"`
	Text        string `json:"text"`
}

// MetadataService generates catalog metadata from meme images through an
// OpenAI-compatible chat API, forcing a tool call so the reply is
// structured JSON rather than prose.
type MetadataService struct {
	client   *resty.Client
	model    string
	endpoint string
	logger   *logger.Logger
}

// MetadataConfig holds configuration for the metadata service.
type MetadataConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// NewMetadataService creates a new metadata service.
// Parameters:
//   - cfg: metadata configuration including model, API key, and base URL.
//   - log: logger instance.
// Returns:
//   - *MetadataService: initialized metadata client wrapper.
func NewMetadataService(cfg *MetadataConfig, log *logger.Logger) *MetadataService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &MetadataService{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
		logger:   log,
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools"`
	ToolChoice interface{}   `json:"tool_choice"`
	MaxTokens  int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type chatTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatImageContent struct {
	Type     string       `json:"type"`
	ImageURL chatImageURL `json:"image_url"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

var metadataToolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Short catalog title in Russian"},
		"slug": {"type": "string", "description": "URL-safe lowercase latin slug, words joined by hyphens"},
		"caption": {"type": "string", "description": "One-line caption in Russian"},
		"description": {"type": "string", "description": "What the meme depicts and when it is used, in Russian"},
		"text": {"type": "string", "description": "Exact text written on the image, empty if none"}
	},
	"required": ["title", "slug", "caption", "description", "text"]
}`)

// Generate produces catalog metadata from a meme image. The model is
// forced to answer through the set_meme_metadata tool; a malformed
// reply is retried up to three attempts before giving up.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes (jpeg/png/webp).
//   - mimeType: MIME type of imageData.
// Returns:
//   - *GeneratedMetadata: parsed tool-call arguments.
//   - error: non-nil when all attempts fail.
func (s *MetadataService) Generate(ctx context.Context, imageData []byte, mimeType string) (*GeneratedMetadata, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	var lastErr error
	for attempt := 1; attempt <= metadataAttempts; attempt++ {
		meta, err := s.generateOnce(ctx, dataURL)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		s.logger.WithFields(logger.Fields{
			"attempt": attempt,
		}).WithError(err).Warn("Metadata generation attempt failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("metadata generation failed after %d attempts: %w", metadataAttempts, lastErr)
}

func (s *MetadataService) generateOnce(ctx context.Context, dataURL string) (*GeneratedMetadata, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: metadataSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					chatTextContent{
						Type: "text",
						Text: "Generate catalog metadata for this meme.",
					},
					chatImageContent{
						Type: "image_url",
						ImageURL: chatImageURL{
							URL:    dataURL,
							Detail: "auto",
						},
					},
				},
			},
		},
		Tools: []chatTool{
			{
				Type: "function",
				Function: chatFunction{
					Name:        "set_meme_metadata",
					Description: "Record the generated catalog metadata for the meme",
					Parameters:  metadataToolParameters,
				},
			},
		},
		ToolChoice: map[string]interface{}{
			"type":     "function",
			"function": map[string]string{"name": "set_meme_metadata"},
		},
		MaxTokens: 600,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call metadata API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil {
			return nil, fmt.Errorf("metadata API returned error: HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return nil, fmt.Errorf("metadata API returned error: HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("metadata API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool call in metadata response")
	}

	call := resp.Choices[0].Message.ToolCalls[0].Function
	if call.Name != "set_meme_metadata" {
		return nil, fmt.Errorf("unexpected tool call %q", call.Name)
	}

	var meta GeneratedMetadata
	if err := json.Unmarshal([]byte(call.Arguments), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	if meta.Title == "" || meta.Slug == "" {
		return nil, fmt.Errorf("metadata response missing title or slug")
	}
	return &meta, nil
}
