// Package gateway defines the boundary to the language-model completion
// capability. The core depends only on this interface; concrete clients
// live under internal/platform.
package gateway

import "context"

// Role identifies the author of a chat message sent to the model.
type Role string

// Possible message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn in a model request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a fully composed model invocation. Composition is
// deterministic: the same inputs always produce the same Request; any text
// variability comes from the model itself.
type Request struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// Gateway generates text completions. Implementations must honor the
// context deadline; callers treat any error as recoverable and fall back to
// deterministic text.
type Gateway interface {
	// Generate sends the request to the model and returns the generated
	// text, or an error (see errors.go for the specific kinds).
	Generate(ctx context.Context, req Request) (string, error)
}
