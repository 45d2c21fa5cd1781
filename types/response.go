package types

import "encoding/json"

// Usage reports token consumption for a served request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one generation alternative in a chat or completion response.
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Text         string   `json:"text,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
	LogProbs     any      `json:"logprobs,omitempty"`
}

// Response is the canonical normalized response for chat, completion and
// responses calls. Provider tags which upstream actually served the request.
type Response struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Model    string   `json:"model"`
	Provider string   `json:"provider,omitempty"`
	Choices  []Choice `json:"choices"`
	Usage    *Usage   `json:"usage,omitempty"`
}

// EmbeddingData is one embedding vector of an embeddings response.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingsResponse is the canonical embeddings response.
type EmbeddingsResponse struct {
	Object   string          `json:"object"`
	Model    string          `json:"model"`
	Provider string          `json:"provider,omitempty"`
	Data     []EmbeddingData `json:"data"`
	Usage    *Usage          `json:"usage,omitempty"`
}

// ImageData is one generated image of an image response.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageResponse is the canonical image generation response.
type ImageResponse struct {
	Created  int64       `json:"created"`
	Provider string      `json:"provider,omitempty"`
	Data     []ImageData `json:"data"`
}

// ModerationResult is one scored input of a moderation response.
type ModerationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

// ModerationResponse is the canonical moderation response.
type ModerationResponse struct {
	ID       string             `json:"id"`
	Model    string             `json:"model"`
	Provider string             `json:"provider,omitempty"`
	Results  []ModerationResult `json:"results"`
}

// RawResponse wraps an already-normalized payload of any function alongside
// the HTTP status the gateway should answer with. Bytes are the exact JSON
// (or binary, for audio) body to return to the client.
type RawResponse struct {
	Status      int
	ContentType string
	Bytes       []byte
}

// JSONResponse renders v as a RawResponse with the given status.
func JSONResponse(status int, v any) (*RawResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &RawResponse{Status: status, ContentType: "application/json", Bytes: data}, nil
}
