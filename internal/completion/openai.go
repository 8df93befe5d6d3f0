package completion

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
)

// sharedHTTPClient backs every provider SDK in the process so connections
// are pooled across calls. Deadlines come from the request context.
var sharedHTTPClient = &http.Client{}

// OpenAI calls the chat completions endpoint of OpenAI or a compatible server.
type OpenAI struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float64
	system      string
}

// NewOpenAI creates an OpenAI completer. SDK retries are disabled so the
// retry decorator is the only place that retries.
func NewOpenAI(apiKey string, opts Options) *OpenAI {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = constants.DefaultOpenAIBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(sharedHTTPClient),
		option.WithMaxRetries(0),
	)

	model := opts.Model
	if model == "" {
		model = constants.DefaultOpenAIModel
	}
	return &OpenAI{
		api:         &client,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		system:      opts.System,
	}
}

// Complete implements Completer.
func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
	}
	if c.system != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(c.system))
	}
	params.Messages = append(params.Messages, openai.UserMessage(prompt))
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if stderrors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = err.Error()
			}
			return "", statusError("OpenAI", "chat/completions", apiErr.StatusCode, msg)
		}
		return "", errors.API("OpenAI", "chat/completions", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return constants.MarkerNoResponse, nil
	}
	return resp.Choices[0].Message.Content, nil
}

// statusError maps a non-200 status to an AuthError or an APIError.
func statusError(service, method string, code int, msg string) error {
	err := fmt.Errorf("API returned status %d: %s", code, msg)
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return &errors.AuthError{Service: service, Err: err}
	}
	return &errors.APIError{Service: service, Method: method, StatusCode: code, Err: err}
}
