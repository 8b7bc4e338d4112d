// Package oracle abstracts the external reasoning service that produces
// review opinions, and turns its raw answers back into structured data.
package oracle

import "context"

// Request is one completion request to the oracle.
type Request struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Prompt      string  `json:"prompt"`
}

// Response is the oracle's raw answer.
type Response struct {
	Text string `json:"text"`
}

// Client is implemented by anything that can answer a completion request.
// Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
