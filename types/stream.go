package types

// Delta is the incremental message payload of one stream chunk.
type Delta struct {
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChunkChoice is one generation alternative within a stream chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// StreamChunk is the canonical normalized stream chunk. The serialized form
// is what the gateway writes into each SSE data frame.
type StreamChunk struct {
	ID       string        `json:"id"`
	Object   string        `json:"object"`
	Created  int64         `json:"created"`
	Model    string        `json:"model"`
	Provider string        `json:"provider,omitempty"`
	Choices  []ChunkChoice `json:"choices"`
	Usage    *Usage        `json:"usage,omitempty"`
}

// StreamToolCall tracks one in-flight tool call block across stream chunks.
type StreamToolCall struct {
	ID   string
	Name string
}

// StreamState carries cross-chunk state a dialect needs while transforming a
// raw upstream stream into canonical chunks (ids, models, open tool call
// blocks).
type StreamState struct {
	ID        string
	Model     string
	Created   int64
	ToolCalls map[int]*StreamToolCall
	Finished  bool
}

// NewStreamState initializes stream state with a fallback id used when the
// upstream omits one.
func NewStreamState(fallbackID string) *StreamState {
	return &StreamState{ID: fallbackID, ToolCalls: make(map[int]*StreamToolCall)}
}
