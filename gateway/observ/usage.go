package observ

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/idkhub-com/reactive-agents/types"
)

const usageEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens estimates the token count of a text. A missing encoding
// (offline vocabulary fetch) degrades to a character heuristic.
func countTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(usageEncoding)
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateUsage fills in token usage for a response whose upstream omitted
// it. Responses that already carry usage are returned unchanged.
func EstimateUsage(req *types.Request, resp *types.Response) *types.Usage {
	if resp != nil && resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		return resp.Usage
	}

	usage := &types.Usage{}
	for _, text := range promptTexts(req) {
		usage.PromptTokens += countTokens(text)
	}
	if resp != nil {
		for _, c := range resp.Choices {
			if c.Message != nil {
				usage.CompletionTokens += countTokens(c.Message.Content)
				for _, tc := range c.Message.ToolCalls {
					usage.CompletionTokens += countTokens(tc.Function.Name + tc.Function.Arguments)
				}
			}
			if c.Text != "" {
				usage.CompletionTokens += countTokens(c.Text)
			}
		}
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

func promptTexts(req *types.Request) []string {
	if req == nil {
		return nil
	}
	switch {
	case req.Chat != nil:
		texts := make([]string, 0, len(req.Chat.Messages))
		for _, m := range req.Chat.Messages {
			texts = append(texts, m.Content)
		}
		return texts
	case req.Completion != nil:
		if req.Completion.Prompt.List != nil {
			return req.Completion.Prompt.List
		}
		return []string{req.Completion.Prompt.Text}
	case req.Responses != nil:
		texts := make([]string, 0, len(req.Responses.Input)+1)
		if req.Responses.Instructions != "" {
			texts = append(texts, req.Responses.Instructions)
		}
		for _, item := range req.Responses.Input {
			texts = append(texts, item.Content)
		}
		return texts
	}
	return nil
}
