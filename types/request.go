package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// FunctionName discriminates the canonical request union.
type FunctionName string

const (
	FunctionChatComplete        FunctionName = "CHAT_COMPLETE"
	FunctionStreamChatComplete  FunctionName = "STREAM_CHAT_COMPLETE"
	FunctionComplete            FunctionName = "COMPLETE"
	FunctionStreamComplete      FunctionName = "STREAM_COMPLETE"
	FunctionCreateModelResponse FunctionName = "CREATE_MODEL_RESPONSE"
	FunctionEmbed               FunctionName = "EMBED"
	FunctionGenerateImage       FunctionName = "GENERATE_IMAGE"
	FunctionModerate            FunctionName = "MODERATE"
	FunctionCreateSpeech        FunctionName = "CREATE_SPEECH"
	FunctionCreateTranscription FunctionName = "CREATE_TRANSCRIPTION"
	FunctionCreateTranslation   FunctionName = "CREATE_TRANSLATION"
	FunctionUploadFile          FunctionName = "UPLOAD_FILE"
	FunctionProxy               FunctionName = "PROXY"
)

// IsStreaming reports whether the function name requests a streamed response.
func (f FunctionName) IsStreaming() bool {
	return f == FunctionStreamChatComplete || f == FunctionStreamComplete
}

// SupportsOptimization reports whether the function participates in the
// optimizer and semantic routing (chat, completion and responses calls).
func (f FunctionName) SupportsOptimization() bool {
	switch f {
	case FunctionChatComplete, FunctionStreamChatComplete,
		FunctionComplete, FunctionStreamComplete,
		FunctionCreateModelResponse:
		return true
	}
	return false
}

// Request is the canonical inbound request, a tagged union over the supported
// inference functions. Exactly one body field matching Function is set.
type Request struct {
	Function FunctionName `json:"function"`

	Chat          *ChatBody          `json:"chat,omitempty"`
	Completion    *CompletionBody    `json:"completion,omitempty"`
	Responses     *ResponsesBody     `json:"responses,omitempty"`
	Embeddings    *EmbeddingsBody    `json:"embeddings,omitempty"`
	Image         *ImageBody         `json:"image,omitempty"`
	Moderation    *ModerationBody    `json:"moderation,omitempty"`
	Speech        *SpeechBody        `json:"speech,omitempty"`
	Transcription *AudioBody         `json:"transcription,omitempty"`
	Translation   *AudioBody         `json:"translation,omitempty"`
	File          *FileBody          `json:"file,omitempty"`
	Proxy         *ProxyBody         `json:"proxy,omitempty"`

	// AdditionalParams carries long-tail provider-specific fields that have
	// no canonical slot. They are forwarded opaquely by the transformer.
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// SamplingParams are the shared generation knobs used by chat, completion and
// responses bodies. Pointers distinguish "absent" from zero so the transformer
// can apply dialect defaults.
type SamplingParams struct {
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	ReasoningEffort  string   `json:"reasoning_effort,omitempty"`
	N                *int     `json:"n,omitempty"`
	User             string   `json:"user,omitempty"`
}

// ChatBody is the canonical chat completion request body.
type ChatBody struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	SamplingParams
	Tools          []Tool `json:"tools,omitempty"`
	ToolChoice     any    `json:"tool_choice,omitempty"`
	ResponseFormat any    `json:"response_format,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

// CompletionBody is the canonical legacy completion request body.
// Prompt is a string or a list of strings.
type CompletionBody struct {
	Model  string `json:"model"`
	Prompt Prompt `json:"prompt"`
	SamplingParams
	Echo   bool `json:"echo,omitempty"`
	Stream bool `json:"stream,omitempty"`
}

// Prompt holds a completion prompt that may arrive as a string or a list.
type Prompt struct {
	Text string
	List []string
}

// UnmarshalJSON accepts both the string and list forms.
func (p *Prompt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Text = s
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		p.List = list
		return nil
	}
	return fmt.Errorf("prompt must be a string or a list of strings")
}

// MarshalJSON renders the form that was provided.
func (p Prompt) MarshalJSON() ([]byte, error) {
	if p.List != nil {
		return json.Marshal(p.List)
	}
	return json.Marshal(p.Text)
}

// IsEmpty reports whether neither form carries content.
func (p Prompt) IsEmpty() bool {
	return p.Text == "" && len(p.List) == 0
}

// ResponsesBody is the canonical Responses API request body.
type ResponsesBody struct {
	Model        string          `json:"model"`
	Input        []ResponsesItem `json:"input"`
	Instructions string          `json:"instructions,omitempty"`
	SamplingParams
	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice any    `json:"tool_choice,omitempty"`
	Store      *bool  `json:"store,omitempty"`
	Stream     bool   `json:"stream,omitempty"`
}

// Responses API input item types.
const (
	ResponsesItemMessage            = "message"
	ResponsesItemFunctionCall       = "function_call"
	ResponsesItemFunctionCallOutput = "function_call_output"
	ResponsesItemMCPCall            = "mcp_call"
)

// ResponsesItem is one entry of a Responses API input list. A bare string
// input decodes as a user message item.
type ResponsesItem struct {
	Type      string `json:"type,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	ServerLabel string `json:"server_label,omitempty"`
}

// UnmarshalJSON accepts a bare string as a user message item.
func (it *ResponsesItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		it.Type = ResponsesItemMessage
		it.Role = RoleUser
		it.Content = s
		return nil
	}
	type alias ResponsesItem
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*it = ResponsesItem(a)
	if it.Type == "" {
		it.Type = ResponsesItemMessage
	}
	return nil
}

// EmbeddingsBody is the canonical embeddings request body.
type EmbeddingsBody struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     *int     `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	User           string   `json:"user,omitempty"`
}

// ImageBody is the canonical image generation request body.
type ImageBody struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              *int   `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	User           string `json:"user,omitempty"`
}

// ModerationBody is the canonical moderation request body.
type ModerationBody struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// SpeechBody is the canonical text-to-speech request body.
type SpeechBody struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
}

// AudioBody is the canonical transcription/translation request body.
// FileName and Data carry the uploaded audio payload.
type AudioBody struct {
	Model          string   `json:"model"`
	FileName       string   `json:"file_name"`
	Data           []byte   `json:"data"`
	Language       string   `json:"language,omitempty"`
	Prompt         string   `json:"prompt,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// FileBody is the canonical file upload request body.
type FileBody struct {
	FileName string `json:"file_name"`
	Purpose  string `json:"purpose"`
	Data     []byte `json:"data"`
}

// ProxyBody carries a raw pass-through request for endpoints the canonical
// model does not cover.
type ProxyBody struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Model returns the model named by the active body, or "".
func (r *Request) Model() string {
	switch {
	case r.Chat != nil:
		return r.Chat.Model
	case r.Completion != nil:
		return r.Completion.Model
	case r.Responses != nil:
		return r.Responses.Model
	case r.Embeddings != nil:
		return r.Embeddings.Model
	case r.Image != nil:
		return r.Image.Model
	case r.Moderation != nil:
		return r.Moderation.Model
	case r.Speech != nil:
		return r.Speech.Model
	case r.Transcription != nil:
		return r.Transcription.Model
	case r.Translation != nil:
		return r.Translation.Model
	}
	return ""
}

// SetModel rewrites the model on the active body.
func (r *Request) SetModel(model string) {
	switch {
	case r.Chat != nil:
		r.Chat.Model = model
	case r.Completion != nil:
		r.Completion.Model = model
	case r.Responses != nil:
		r.Responses.Model = model
	case r.Embeddings != nil:
		r.Embeddings.Model = model
	case r.Image != nil:
		r.Image.Model = model
	case r.Moderation != nil:
		r.Moderation.Model = model
	case r.Speech != nil:
		r.Speech.Model = model
	case r.Transcription != nil:
		r.Transcription.Model = model
	case r.Translation != nil:
		r.Translation.Model = model
	}
}

// Sampling returns the sampling params of the active body, or nil when the
// function has none.
func (r *Request) Sampling() *SamplingParams {
	switch {
	case r.Chat != nil:
		return &r.Chat.SamplingParams
	case r.Completion != nil:
		return &r.Completion.SamplingParams
	case r.Responses != nil:
		return &r.Responses.SamplingParams
	}
	return nil
}

// Validate checks structural and range constraints of the active body.
func (r *Request) Validate() error {
	if err := r.validateBody(); err != nil {
		return err
	}
	if sp := r.Sampling(); sp != nil {
		if sp.Temperature != nil && (*sp.Temperature < 0 || *sp.Temperature > 2) {
			return NewError(ErrInvalidRequest, "temperature must be between 0 and 2").WithParam("temperature")
		}
		if sp.TopP != nil && (*sp.TopP < 0 || *sp.TopP > 1) {
			return NewError(ErrInvalidRequest, "top_p must be between 0 and 1").WithParam("top_p")
		}
		if sp.FrequencyPenalty != nil && (*sp.FrequencyPenalty < -2 || *sp.FrequencyPenalty > 2) {
			return NewError(ErrInvalidRequest, "frequency_penalty must be between -2 and 2").WithParam("frequency_penalty")
		}
		if sp.PresencePenalty != nil && (*sp.PresencePenalty < -2 || *sp.PresencePenalty > 2) {
			return NewError(ErrInvalidRequest, "presence_penalty must be between -2 and 2").WithParam("presence_penalty")
		}
		switch sp.ReasoningEffort {
		case "", "minimal", "low", "medium", "high":
		default:
			return NewError(ErrInvalidRequest, "reasoning_effort must be one of minimal, low, medium, high").WithParam("reasoning_effort")
		}
	}
	return nil
}

func (r *Request) validateBody() error {
	switch r.Function {
	case FunctionChatComplete, FunctionStreamChatComplete:
		if r.Chat == nil {
			return NewError(ErrInvalidRequest, "chat body is required")
		}
		if len(r.Chat.Messages) == 0 {
			return NewError(ErrInvalidRequest, "messages must not be empty").WithParam("messages")
		}
	case FunctionComplete, FunctionStreamComplete:
		if r.Completion == nil {
			return NewError(ErrInvalidRequest, "completion body is required")
		}
		if r.Completion.Prompt.IsEmpty() {
			return NewError(ErrInvalidRequest, "prompt must not be empty").WithParam("prompt")
		}
	case FunctionCreateModelResponse:
		if r.Responses == nil {
			return NewError(ErrInvalidRequest, "responses body is required")
		}
		if len(r.Responses.Input) == 0 {
			return NewError(ErrInvalidRequest, "input must not be empty").WithParam("input")
		}
	case FunctionEmbed:
		if r.Embeddings == nil || len(r.Embeddings.Input) == 0 {
			return NewError(ErrInvalidRequest, "embeddings input must not be empty").WithParam("input")
		}
	case FunctionGenerateImage:
		if r.Image == nil || r.Image.Prompt == "" {
			return NewError(ErrInvalidRequest, "image prompt must not be empty").WithParam("prompt")
		}
	case FunctionModerate:
		if r.Moderation == nil || len(r.Moderation.Input) == 0 {
			return NewError(ErrInvalidRequest, "moderation input must not be empty").WithParam("input")
		}
	case FunctionCreateSpeech:
		if r.Speech == nil || r.Speech.Input == "" {
			return NewError(ErrInvalidRequest, "speech input must not be empty").WithParam("input")
		}
	case FunctionCreateTranscription:
		if r.Transcription == nil || len(r.Transcription.Data) == 0 {
			return NewError(ErrInvalidRequest, "transcription file is required").WithParam("file")
		}
	case FunctionCreateTranslation:
		if r.Translation == nil || len(r.Translation.Data) == 0 {
			return NewError(ErrInvalidRequest, "translation file is required").WithParam("file")
		}
	case FunctionUploadFile:
		if r.File == nil || len(r.File.Data) == 0 {
			return NewError(ErrInvalidRequest, "file data is required").WithParam("file")
		}
	case FunctionProxy:
		if r.Proxy == nil || r.Proxy.Path == "" {
			return NewError(ErrInvalidRequest, "proxy path is required").WithParam("path")
		}
	default:
		return NewError(ErrInvalidRequest, fmt.Sprintf("unknown function %q", r.Function))
	}
	return nil
}

// remapCallID produces a stable synthetic tool call id keyed by the original
// call_id, so function_call and function_call_output items pair up after
// projection regardless of the upstream's id format.
func remapCallID(callID string) string {
	sum := sha256.Sum256([]byte("call:" + callID))
	return "fc_" + hex.EncodeToString(sum[:12])
}

// ExtractMessages projects the active body's conversation into canonical chat
// messages. Chat messages pass through; completion prompts become user
// messages; Responses input items are lowered per item type:
//
//   - message            -> chat message with the item's role
//   - function_call      -> assistant message with a single tool call
//   - function_call_output -> tool message with the matching remapped id
//   - mcp_call           -> assistant tool call plus tool result message;
//     the result is Output, or Error, or "success" when both are absent
//
// It fails with InvalidRequest when required fields are missing.
func (r *Request) ExtractMessages() ([]Message, error) {
	switch r.Function {
	case FunctionChatComplete, FunctionStreamChatComplete:
		if r.Chat == nil || len(r.Chat.Messages) == 0 {
			return nil, NewError(ErrInvalidRequest, "messages must not be empty").WithParam("messages")
		}
		return r.Chat.Messages, nil

	case FunctionComplete, FunctionStreamComplete:
		if r.Completion == nil || r.Completion.Prompt.IsEmpty() {
			return nil, NewError(ErrInvalidRequest, "prompt must not be empty").WithParam("prompt")
		}
		if r.Completion.Prompt.List != nil {
			out := make([]Message, 0, len(r.Completion.Prompt.List))
			for _, p := range r.Completion.Prompt.List {
				out = append(out, NewUserMessage(p))
			}
			return out, nil
		}
		return []Message{NewUserMessage(r.Completion.Prompt.Text)}, nil

	case FunctionCreateModelResponse:
		if r.Responses == nil || len(r.Responses.Input) == 0 {
			return nil, NewError(ErrInvalidRequest, "input must not be empty").WithParam("input")
		}
		out := make([]Message, 0, len(r.Responses.Input)+1)
		if r.Responses.Instructions != "" {
			out = append(out, NewSystemMessage(r.Responses.Instructions))
		}
		for _, item := range r.Responses.Input {
			msgs, err := lowerResponsesItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, msgs...)
		}
		return out, nil
	}
	return nil, NewError(ErrInvalidRequest,
		fmt.Sprintf("function %q does not carry chat messages", r.Function))
}

func lowerResponsesItem(item ResponsesItem) ([]Message, error) {
	switch item.Type {
	case ResponsesItemMessage, "":
		role := item.Role
		if role == "" {
			role = RoleUser
		}
		return []Message{{Role: role, Content: item.Content}}, nil

	case ResponsesItemFunctionCall:
		if item.Name == "" {
			return nil, NewError(ErrInvalidRequest, "function_call item requires a name").WithParam("input")
		}
		return []Message{{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{{
				ID:   remapCallID(item.CallID),
				Type: "function",
				Function: ToolFunction{Name: item.Name, Arguments: item.Arguments},
			}},
		}}, nil

	case ResponsesItemFunctionCallOutput:
		if item.CallID == "" {
			return nil, NewError(ErrInvalidRequest, "function_call_output item requires a call_id").WithParam("input")
		}
		return []Message{NewToolMessage(remapCallID(item.CallID), item.Output)}, nil

	case ResponsesItemMCPCall:
		if item.Name == "" {
			return nil, NewError(ErrInvalidRequest, "mcp_call item requires a name").WithParam("input")
		}
		id := remapCallID(item.CallID + ":" + item.Name)
		result := item.Output
		if result == "" {
			result = item.Error
		}
		if result == "" {
			result = "success"
		}
		return []Message{
			{
				Role: RoleAssistant,
				ToolCalls: []ToolCall{{
					ID:   id,
					Type: "function",
					Function: ToolFunction{Name: item.Name, Arguments: item.Arguments},
				}},
			},
			NewToolMessage(id, result),
		}, nil
	}
	return nil, NewError(ErrInvalidRequest,
		fmt.Sprintf("unsupported input item type %q", item.Type)).WithParam("input")
}

// UserVisibleText concatenates the user-facing portion of the conversation,
// used as the embedding input for semantic routing and caching.
func (r *Request) UserVisibleText() string {
	msgs, err := r.ExtractMessages()
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
