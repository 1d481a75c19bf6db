package embedding

import (
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrUnavailable is returned when the embedding backend cannot be used:
// the API credential is missing or the API call failed permanently.
// Retrieval paths treat this as a degraded state and return empty results;
// ingestion paths surface it to the caller.
var ErrUnavailable = errors.New("embedding service unavailable")

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client for embedding generation.
// It reads OPENAI_API_KEY from the environment and returns ErrUnavailable
// if it is not set. Extra request options (custom base URL, HTTP client)
// are passed through, which also lets tests point at a local server.
func NewClient(opts ...option.RequestOption) (*Client, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrUnavailable)
	}

	// openai-go reads OPENAI_API_KEY from the environment
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}
