package gemini

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
	"github.com/VAR-META-Tech/intent-verification/internal/errors"
)

// Client completes prompts with a Gemini model.
type Client struct {
	client *genai.Client
	model  generator
}

// NewClient creates a new Gemini client for apiKey.
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.Empty("api_key")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &errors.APIError{
			Service: "Gemini",
			Method:  "NewClient",
			Err:     err,
		}
	}

	name := opts.Model
	if name == "" {
		name = constants.DefaultGeminiModel
	}
	model := client.GenerativeModel(name)

	// Low temperature for more deterministic responses
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.1
	}
	model.SetTemperature(temperature)
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(opts.System))
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// Close closes the Gemini client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Complete sends prompt to the model and returns the concatenated text parts
// of the first candidate.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return constants.MarkerNoResponse
	}

	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return constants.MarkerNoResponse
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return constants.MarkerNoResponse
	}
	return sb.String()
}

// classify maps Gemini transport errors onto AuthError or APIError with an
// HTTP-equivalent status, so retry decisions do not depend on message text.
func classify(err error) error {
	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		return fromStatus(gErr.Code, err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return fromStatus(httpStatus(st.Code()), err)
	}

	return &errors.APIError{Service: "Gemini", Method: "GenerateContent", Err: err}
}

func fromStatus(code int, err error) error {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return &errors.AuthError{Service: "Gemini", Err: err}
	}
	// Gemini reports an invalid key as 400 API_KEY_INVALID.
	if code == http.StatusBadRequest && strings.Contains(err.Error(), "API_KEY_INVALID") {
		return &errors.AuthError{Service: "Gemini", Err: err}
	}
	return &errors.APIError{Service: "Gemini", Method: "GenerateContent", StatusCode: code, Err: err}
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Internal:
		return http.StatusInternalServerError
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	default:
		return 0
	}
}

