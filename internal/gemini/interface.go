// Package gemini provides the Gemini implementation of a text completer.
package gemini

import (
	"context"

	"github.com/google/generative-ai-go/genai"
)

// generator is the subset of *genai.GenerativeModel used by Client.
// This interface enables testing by allowing mock implementations.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Options configures the Gemini model.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	System      string
}
