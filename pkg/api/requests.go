package api

// ChatRequest is the unified upstream request shape. Adapters translate it
// into their family's wire format.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
	// ModelAssistant is the assistant role name Gemini uses on the wire.
	ModelAssistant Role = "model"
)

// DispatchRequest is the caller-facing request: one prompt against one
// invocable model name. User is an opaque passthrough for the caller's own
// correlation data; the gateway never inspects it.
type DispatchRequest struct {
	Model  string
	Prompt string
	User   any
}
