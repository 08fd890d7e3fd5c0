package api

type ChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"` // "chat.completion" or "chat.completion.chunk"
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []Choice       `json:"choices"`
	Usage   *ResponseUsage `json:"usage,omitempty"`
}

type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"` // non-streaming
	Delta        *ChatMessage `json:"delta,omitempty"`   // streaming
	FinishReason string       `json:"finish_reason"`
}

type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Text returns the assembled assistant text of a non-streaming response.
func (r *ChatResponse) Text() string {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return r.Choices[0].Message.Content
}

// DeltaText returns the incremental text of a streaming chunk, or "" when the
// chunk carries no content (usage frames, finish markers).
func (r *ChatResponse) DeltaText() string {
	if len(r.Choices) == 0 || r.Choices[0].Delta == nil {
		return ""
	}
	return r.Choices[0].Delta.Content
}

// StreamResult is one element of an adapter's native stream: either a chunk
// or a terminal error, never both.
type StreamResult struct {
	Response *ChatResponse
	Err      error
}
