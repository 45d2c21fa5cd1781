package evals

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewDefaultRegistry builds the stock method set: the latency scorer plus
// the LLM-judge family wired to the given reentrant judge surface. All judge
// methods share one limiter so evaluation bursts cannot starve foreground
// inference.
func NewDefaultRegistry(judge Judge, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Limit(5), 10)

	r := NewRegistry()
	r.Register(&LatencyMethod{})
	for _, m := range judgeMethods(judge, limiter, logger) {
		r.Register(m)
	}
	return r
}

func judgeMethods(judge Judge, limiter *rate.Limiter, logger *zap.Logger) []Method {
	specs := []struct {
		details  Details
		criteria string
	}{
		{
			details: Details{
				Tag:         "faithfulness",
				Label:       "Faithfulness",
				Description: "Checks that the response only states facts supported by the conversation context.",
			},
			criteria: "Score how faithful the response is to the information available in the request. " +
				"Penalize fabricated facts, invented citations and claims that contradict the provided context. " +
				"A response that only uses supported information scores 1.0.",
		},
		{
			details: Details{
				Tag:         "role_adherence",
				Label:       "Role adherence",
				Description: "Checks that the assistant stays within the persona and constraints set by its system prompt.",
			},
			criteria: "Score how well the assistant adheres to the role, tone and constraints established in the " +
				"system message of the request. Penalize breaking character, ignoring stated restrictions, or " +
				"adopting capabilities the role excludes.",
		},
		{
			details: Details{
				Tag:         "conversation_completeness",
				Label:       "Conversation completeness",
				Description: "Checks that every user intention raised in the conversation was addressed.",
			},
			criteria: "Identify each distinct intention the user expressed across the conversation and score the " +
				"fraction that the assistant fully addressed. Unaddressed or partially addressed intentions lower " +
				"the score proportionally.",
		},
		{
			details: Details{
				Tag:         "task_completion",
				Label:       "Task completion",
				Description: "Checks that the task stated in the final user message was accomplished.",
			},
			criteria: "Determine the concrete task the final user message asks for and score whether the response " +
				"accomplishes it. A correct and complete result scores 1.0; an attempt that misses the goal scores " +
				"near 0.0 regardless of fluency.",
		},
		{
			details: Details{
				Tag:         "argument_correctness",
				Label:       "Argument correctness",
				Description: "Checks that tool calls in the response carry correct, schema-conformant arguments.",
			},
			criteria: "Inspect any tool calls in the response. Score whether the chosen tools fit the user's request " +
				"and whether every argument is correct, well-typed and consistent with the conversation. Responses " +
				"without tool calls score on whether omitting tools was appropriate.",
		},
	}

	methods := make([]Method, 0, len(specs))
	for _, s := range specs {
		methods = append(methods, &judgeMethod{
			details:  s.details,
			criteria: s.criteria,
			judge:    judge,
			limiter:  limiter,
			logger:   logger.With(zap.String("component", "evals"), zap.String("method", s.details.Tag)),
		})
	}
	return methods
}
