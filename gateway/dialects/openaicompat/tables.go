package openaicompat

import (
	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/types"
)

func fp(v float64) *float64 { return &v }

// ParamTable implements gateway.Dialect. Tables are data: one ordered rule
// list per function, read by the shared transformer.
func (d *Dialect) ParamTable(fn types.FunctionName) gateway.ParamTable {
	switch fn {
	case types.FunctionChatComplete, types.FunctionStreamChatComplete:
		return d.chatTable(false)
	case types.FunctionCreateModelResponse:
		if d.cfg.NativeResponses {
			return d.responsesTable()
		}
		return d.chatTable(true)
	case types.FunctionComplete, types.FunctionStreamComplete:
		return d.completionTable()
	case types.FunctionEmbed:
		return d.embeddingsTable()
	case types.FunctionGenerateImage:
		return d.imageTable()
	case types.FunctionModerate:
		return d.moderationTable()
	case types.FunctionCreateSpeech:
		return d.speechTable()
	case types.FunctionCreateTranscription:
		return d.audioTable(true)
	case types.FunctionCreateTranslation:
		return d.audioTable(false)
	case types.FunctionUploadFile:
		return d.fileTable()
	case types.FunctionProxy:
		// Proxy bodies pass through untouched; the empty table keeps the
		// function routable.
		return gateway.ParamTable{}
	}
	return nil
}

// chatTable maps the canonical chat body (or a lowered responses body) onto
// an OpenAI chat completion request.
func (d *Dialect) chatTable(fromResponses bool) gateway.ParamTable {
	messages := func(req *types.Request) (any, bool) {
		msgs, err := req.ExtractMessages()
		if err != nil || len(msgs) == 0 {
			return nil, false
		}
		return d.rewriteRoles(msgs), true
	}
	table := gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "messages", Param: "messages", Required: true, Transform: messages},
		{Canonical: "temperature", Param: "temperature", Min: fp(0), Max: fp(2)},
		{Canonical: "top_p", Param: "top_p", Min: fp(0), Max: fp(1)},
		{Canonical: "max_tokens", Param: "max_tokens"},
		{Canonical: "frequency_penalty", Param: "frequency_penalty", Min: fp(-2), Max: fp(2)},
		{Canonical: "presence_penalty", Param: "presence_penalty", Min: fp(-2), Max: fp(2)},
		{Canonical: "stop", Param: "stop"},
		{Canonical: "seed", Param: "seed"},
		{Canonical: "n", Param: "n"},
		{Canonical: "user", Param: "user"},
		{Canonical: "tools", Param: "tools"},
		{Canonical: "tool_choice", Param: "tool_choice"},
		{Canonical: "response_format", Param: "response_format"},
		{Canonical: "reasoning_effort", Param: "reasoning_effort"},
	}
	if !fromResponses {
		table = append(table, gateway.ParamRule{Canonical: "stream", Param: "stream"})
	}
	return table
}

// responsesTable maps the canonical responses body onto a native
// /v1/responses request.
func (d *Dialect) responsesTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "input", Param: "input", Required: true},
		{Canonical: "instructions", Param: "instructions"},
		{Canonical: "temperature", Param: "temperature", Min: fp(0), Max: fp(2)},
		{Canonical: "top_p", Param: "top_p", Min: fp(0), Max: fp(1)},
		{Canonical: "max_tokens", Param: "max_output_tokens"},
		{Canonical: "tools", Param: "tools"},
		{Canonical: "tool_choice", Param: "tool_choice"},
		{Canonical: "store", Param: "store"},
		{Canonical: "stream", Param: "stream"},
	}
}

func (d *Dialect) completionTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "prompt", Param: "prompt", Required: true},
		{Canonical: "temperature", Param: "temperature", Min: fp(0), Max: fp(2)},
		{Canonical: "top_p", Param: "top_p", Min: fp(0), Max: fp(1)},
		{Canonical: "max_tokens", Param: "max_tokens", Default: float64(16)},
		{Canonical: "frequency_penalty", Param: "frequency_penalty", Min: fp(-2), Max: fp(2)},
		{Canonical: "presence_penalty", Param: "presence_penalty", Min: fp(-2), Max: fp(2)},
		{Canonical: "stop", Param: "stop"},
		{Canonical: "seed", Param: "seed"},
		{Canonical: "n", Param: "n"},
		{Canonical: "echo", Param: "echo"},
		{Canonical: "user", Param: "user"},
		{Canonical: "stream", Param: "stream"},
	}
}

func (d *Dialect) embeddingsTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "input", Param: "input", Required: true},
		{Canonical: "dimensions", Param: "dimensions"},
		{Canonical: "encoding_format", Param: "encoding_format"},
		{Canonical: "user", Param: "user"},
	}
}

func (d *Dialect) imageTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "prompt", Param: "prompt", Required: true},
		{Canonical: "n", Param: "n", Default: float64(1)},
		{Canonical: "size", Param: "size"},
		{Canonical: "quality", Param: "quality"},
		{Canonical: "style", Param: "style"},
		{Canonical: "response_format", Param: "response_format"},
		{Canonical: "user", Param: "user"},
	}
}

func (d *Dialect) moderationTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "input", Param: "input", Required: true},
		{Canonical: "model", Param: "model"},
	}
}

func (d *Dialect) speechTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "input", Param: "input", Required: true},
		{Canonical: "voice", Param: "voice", Required: true},
		{Canonical: "response_format", Param: "response_format"},
		{Canonical: "speed", Param: "speed", Min: fp(0.25), Max: fp(4)},
	}
}

// audioTable covers both audio endpoints; translation takes no language
// parameter. The file part itself travels out of band in the multipart
// encoding, so no rule maps it.
func (d *Dialect) audioTable(withLanguage bool) gateway.ParamTable {
	table := gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "prompt", Param: "prompt"},
		{Canonical: "response_format", Param: "response_format"},
		{Canonical: "temperature", Param: "temperature", Min: fp(0), Max: fp(1)},
	}
	if withLanguage {
		table = append(table, gateway.ParamRule{Canonical: "language", Param: "language"})
	}
	return table
}

func (d *Dialect) fileTable() gateway.ParamTable {
	return gateway.ParamTable{
		{Canonical: "purpose", Param: "purpose", Required: true},
	}
}
