// Package llm provides Leo's client to the inference endpoint, plus the
// defensive JSON recovery used on every model response.
//
// The endpoint gives no format guarantee: responses are free text expected
// to contain one JSON object somewhere. Parsing is therefore a
// parse-or-fallback contract: a failed parse is "no answer", never an
// error that propagates into caller logic.
package llm

import (
	"context"
)

// Options are generation parameters forwarded to the endpoint.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Request is a single prompt-in/text-out generation call.
type Request struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Options Options `json:"options"`
}

// Client is the inference endpoint surface consumed by Leo.
type Client interface {
	// Generate runs one completion. Callers must bound the call with a
	// context deadline; a timeout is a normal failure handled by the
	// caller's fallback path, never retried within the same request.
	Generate(ctx context.Context, req Request) (string, error)

	// Healthy probes endpoint reachability.
	Healthy(ctx context.Context) error
}
