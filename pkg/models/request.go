package models

// AskRequest is the inbound tuple handed to the relay core by the
// chat-platform layer.
type AskRequest struct {
	UserID  string `json:"user_id"`
	Prompt  string `json:"prompt"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// AskResponse is the outbound shape for /v1/ask. Exactly one field is set.
type AskResponse struct {
	Text   string `json:"text,omitempty"`
	Denied string `json:"denied,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ChatMessage represents a single message in a chat-completions payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the OpenAI-compatible request body sent by the
// chat adapter.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatCompletionResponse is the OpenAI-compatible response envelope.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// GenerationRequest is the request body for text-generation inference APIs.
type GenerationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters GenerationParameters `json:"parameters"`
}

// GenerationParameters tunes a text-generation call.
type GenerationParameters struct {
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// Generation is one element of the array envelope returned by
// text-generation inference APIs.
type Generation struct {
	GeneratedText string `json:"generated_text"`
}

// MathQueryEnvelope is the outer envelope of a math-engine query response.
type MathQueryEnvelope struct {
	QueryResult MathQueryResult `json:"queryresult"`
}

// MathQueryResult holds the result pods of a math-engine query.
type MathQueryResult struct {
	Success bool      `json:"success"`
	Pods    []MathPod `json:"pods"`
}

// MathPod is a titled section of a math-engine answer.
type MathPod struct {
	Title   string       `json:"title"`
	SubPods []MathSubPod `json:"subpods"`
}

// MathSubPod carries the plaintext body of a pod.
type MathSubPod struct {
	PlainText string `json:"plaintext"`
}
