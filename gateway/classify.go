package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/idkhub-com/reactive-agents/types"
)

// maxClassifyDepth bounds the walk over nested error payloads.
const maxClassifyDepth = 10

// indicatorFamily groups the keywords that map an arbitrary upstream error
// onto one canonical status. Families are checked in order; the first family
// with a keyword hit wins.
type indicatorFamily struct {
	name      string
	code      types.ErrorCode
	status    int
	retryable bool
	generic   string
	action    string
	keywords  []string
}

var indicatorFamilies = []indicatorFamily{
	{
		name: "timeout", code: types.ErrTimeout, status: http.StatusRequestTimeout, retryable: true,
		generic: "The request to the provider timed out.",
		action:  "Retry the request or raise the request timeout.",
		keywords: []string{"timeout", "timed out", "deadline exceeded", "context canceled"},
	},
	{
		name: "rate", code: types.ErrRateLimited, status: http.StatusTooManyRequests, retryable: true,
		generic: "The provider rate limited the request.",
		action:  "Retry with backoff or raise your provider quota.",
		keywords: []string{"rate limit", "rate_limit", "too many requests", "quota", "credit", "billing", "exceeded your current"},
	},
	{
		name: "authentication", code: types.ErrUnauthorized, status: http.StatusUnauthorized,
		generic: "The provider rejected the configured credentials.",
		action:  "Verify the API key configured for this provider.",
		keywords: []string{"api key", "api_key", "authentication", "unauthorized", "invalid key", "invalid token", "incorrect api"},
	},
	{
		name: "permission", code: types.ErrForbidden, status: http.StatusForbidden,
		generic: "The provider denied access to the requested resource.",
		action:  "Check that your account has access to this model.",
		keywords: []string{"permission", "forbidden", "access denied", "not allowed", "not authorized"},
	},
	{
		name: "not_found", code: types.ErrNotFound, status: http.StatusNotFound,
		generic: "The requested resource was not found at the provider.",
		action:  "Check the model name and endpoint.",
		keywords: []string{"not found", "not_found", "does not exist", "no such", "unknown model"},
	},
	{
		name: "validation", code: types.ErrInvalidRequest, status: http.StatusUnprocessableEntity,
		generic: "The provider rejected the request as invalid.",
		action:  "Check the request parameters against the provider's schema.",
		keywords: []string{"validation", "invalid request", "invalid_request", "missing", "must be", "unsupported parameter", "malformed"},
	},
	{
		name: "unavailable", code: types.ErrUnavailable, status: http.StatusServiceUnavailable, retryable: true,
		generic: "The provider is temporarily unavailable.",
		action:  "Retry later or fall back to another provider.",
		keywords: []string{"unavailable", "overloaded", "overload", "maintenance", "capacity"},
	},
	{
		name: "upstream", code: types.ErrUpstreamError, status: http.StatusBadGateway, retryable: true,
		generic: "The upstream provider returned an error.",
		action:  "Retry the request or fall back to another provider.",
		keywords: []string{"upstream", "bad gateway", "internal server error", "server error", "connection refused", "connection reset", "eof"},
	},
}

// Classify maps any error to a canonical gateway error. It walks the error's
// string leaves (bounded depth, cycle-safe) looking for indicator keywords.
// Classification is idempotent: a previously classified error is returned
// unchanged.
func Classify(err error, provider string) *types.Error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*types.Error); ok && ge.Details != nil && ge.Details.Classification != "" {
		return ge
	}

	leaves := collectLeaves(err)
	originalStatus := 0
	providerBody := ""
	if ge, ok := err.(*types.Error); ok {
		originalStatus = ge.HTTPStatus
		if ge.Details != nil {
			providerBody = ge.Details.ProviderBody
		}
	}

	joined := strings.ToLower(strings.Join(leaves, " \n "))
	family := matchFamily(joined)

	status := 0
	switch {
	case family != nil:
		status = family.status
	case originalStatus >= 400 && originalStatus < 500:
		status = http.StatusBadRequest
	case originalStatus >= 500:
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
	}

	code := types.ErrInternal
	classification := "internal"
	retryable := false
	action := "Contact support if the problem persists."
	if family != nil {
		code = family.code
		classification = family.name
		retryable = family.retryable
		action = family.action
	}

	original := err.Error()
	var message string
	if status >= 500 || status == http.StatusBadGateway {
		// Server-class errors surface only the generic phrase.
		if family != nil {
			message = family.generic
		} else {
			message = "The gateway encountered an internal error."
		}
	} else {
		// Client-class errors pass the provider message through, prefixed
		// once with the provider tag.
		message = original
		if ge, ok := err.(*types.Error); ok {
			message = ge.Message
		}
		if provider != "" && !strings.HasPrefix(message, provider+" error: ") {
			message = provider + " error: " + message
		}
	}

	return &types.Error{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
		Details: &types.ErrorDetails{
			OriginalError:   original,
			OriginalStatus:  originalStatus,
			ProviderBody:    providerBody,
			Classification:  classification,
			SuggestedAction: action,
		},
	}
}

func matchFamily(haystack string) *indicatorFamily {
	for i := range indicatorFamilies {
		for _, kw := range indicatorFamilies[i].keywords {
			if strings.Contains(haystack, kw) {
				return &indicatorFamilies[i]
			}
		}
	}
	return nil
}

// collectLeaves gathers the string leaves of an error, including any JSON
// provider body attached to a gateway error.
func collectLeaves(err error) []string {
	var leaves []string
	leaves = append(leaves, err.Error())

	if ge, ok := err.(*types.Error); ok && ge.Details != nil && ge.Details.ProviderBody != "" {
		var decoded any
		if json.Unmarshal([]byte(ge.Details.ProviderBody), &decoded) == nil {
			walkLeaves(decoded, 0, &leaves)
		} else {
			leaves = append(leaves, ge.Details.ProviderBody)
		}
	}
	return leaves
}

func walkLeaves(v any, depth int, out *[]string) {
	if depth > maxClassifyDepth {
		return
	}
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case map[string]any:
		for _, vv := range t {
			walkLeaves(vv, depth+1, out)
		}
	case []any:
		for _, vv := range t {
			walkLeaves(vv, depth+1, out)
		}
	}
}
