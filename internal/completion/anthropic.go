package completion

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
)

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	api         *anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	system      string
}

// NewAnthropic creates an Anthropic completer. SDK retries are disabled so the
// retry decorator is the only place that retries.
func NewAnthropic(apiKey string, opts Options) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(sharedHTTPClient),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	model := opts.Model
	if model == "" {
		model = constants.DefaultAnthropicModel
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = constants.DefaultMaxTokens
	}

	return &Anthropic{
		api:         &client,
		model:       anthropic.Model(model),
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		system:      opts.System,
	}
}

// Complete implements Completer.
func (c *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: c.system},
		}
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
				return "", &errors.AuthError{Service: "Anthropic", Err: err}
			}
			return "", &errors.APIError{Service: "Anthropic", Method: "Messages.New", StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", errors.API("Anthropic", "Messages.New", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return constants.MarkerNoResponse, nil
}
