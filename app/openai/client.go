package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultHTTPTimeout = 60 * time.Second

	// NoFoodSentinel is the literal the classify prompt instructs the
	// model to return when the photo contains no food.
	NoFoodSentinel = "NO_FOOD"

	classifyMaxTokens = 150
	recipeMaxTokens   = 300
)

// Client wraps the OpenAI chat completions API for food classification and
// recipe generation.
type Client struct {
	apiKey             string
	baseURL            string
	model              string
	classifyPrompt     string
	recipeSystemPrompt string
	recipeUserTemplate string
	httpClient         *http.Client
}

// Option customizes the OpenAI client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// WithClassifyPrompt overrides the vision classification prompt.
func WithClassifyPrompt(prompt string) Option {
	return func(c *Client) {
		if strings.TrimSpace(prompt) != "" {
			c.classifyPrompt = prompt
		}
	}
}

// WithRecipePrompts overrides the recipe system prompt and user template.
// The template must contain a single %s for the food name.
func WithRecipePrompts(system, userTemplate string) Option {
	return func(c *Client) {
		if strings.TrimSpace(system) != "" {
			c.recipeSystemPrompt = system
		}
		if strings.TrimSpace(userTemplate) != "" {
			c.recipeUserTemplate = userTemplate
		}
	}
}

// NewClient constructs an OpenAI API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:             strings.TrimSpace(apiKey),
		baseURL:            defaultBaseURL,
		model:              defaultModel,
		classifyPrompt:     DefaultClassifyPrompt,
		recipeSystemPrompt: DefaultRecipeSystemPrompt,
		recipeUserTemplate: DefaultRecipeUserTemplate,
		httpClient:         &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ClassifyFood sends a normalized JPEG to the vision model. It returns the
// detected food name and true, or "" and false when the model reports no
// food in the photo.
func (c *Client) ClassifyFood(ctx context.Context, imageData []byte) (string, bool, error) {
	if len(imageData) == 0 {
		return "", false, errors.New("openai classify: image data required")
	}

	encoded := base64.StdEncoding.EncodeToString(imageData)
	request := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: c.classifyPrompt},
					{Type: "image_url", ImageURL: &imageURL{
						URL: "data:image/jpeg;base64," + encoded,
					}},
				},
			},
		},
		MaxTokens: classifyMaxTokens,
	}

	content, err := c.complete(ctx, request)
	if err != nil {
		return "", false, fmt.Errorf("openai classify: %w", err)
	}

	if strings.EqualFold(content, NoFoodSentinel) {
		return "", false, nil
	}

	return content, true, nil
}

// GenerateRecipe asks the model for a short recipe for the given food.
func (c *Client) GenerateRecipe(ctx context.Context, foodName string) (string, error) {
	foodName = strings.TrimSpace(foodName)
	if foodName == "" {
		return "", errors.New("openai recipe: food name required")
	}

	request := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.recipeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(c.recipeUserTemplate, foodName)},
		},
		MaxTokens: recipeMaxTokens,
	}

	content, err := c.complete(ctx, request)
	if err != nil {
		return "", fmt.Errorf("openai recipe: %w", err)
	}

	return content, nil
}

func (c *Client) complete(ctx context.Context, request chatCompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("api key required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty content")
	}

	return content, nil
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// chatMessage content is either a plain string or a list of contentPart
// (the vision request shape).
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
