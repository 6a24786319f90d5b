package analysis

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Client talks to the Gemini API.
type Client struct {
	client   *genai.Client
	model    string
	language string
	logger   *logrus.Logger
}

// NewClient creates an analysis client.
func NewClient(ctx context.Context, apiKey, model, language string, logger *logrus.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set it in the config file or the environment)")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = logrus.New()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:   client,
		model:    model,
		language: language,
		logger:   logger,
	}, nil
}

// AnalyzeSoil submits one reading (optionally with a photo of the plot) and
// returns the validated interpretation.
func (c *Client) AnalyzeSoil(ctx context.Context, data SoilData, image []byte, imageMIME string) (*Result, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(buildPrompt(data, c.language)),
	}
	if len(image) > 0 {
		if imageMIME == "" {
			imageMIME = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(image, imageMIME))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	c.logger.WithFields(logrus.Fields{
		"model":     c.model,
		"has_image": len(image) > 0,
	}).Debug("Requesting soil analysis")

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, &BackendError{Op: "generate", Cause: err}
	}

	result, err := ParseResult(resp.Text())
	if err != nil {
		return nil, err
	}

	c.logger.WithField("score", result.Score).Debug("Analysis complete")
	return result, nil
}

// Message is one turn of a follow-up conversation.
type Message struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Chat continues a conversation about an earlier analysis. The analysis
// result is replayed as the first model turn so the backend has context.
func (c *Client) Chat(ctx context.Context, analysisJSON string, history []Message, question string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(
			"You are a soil scientist answering follow-up questions about this soil analysis:\n"+analysisJSON,
			genai.RoleUser),
	}
	for _, msg := range history {
		var role genai.Role = genai.RoleUser
		if msg.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(question, genai.RoleUser))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", &BackendError{Op: "chat", Cause: err}
	}

	answer := resp.Text()
	if answer == "" {
		return "", &BackendError{Op: "chat", Cause: fmt.Errorf("empty response")}
	}
	return answer, nil
}
