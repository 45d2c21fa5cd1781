// Package gateway holds the provider dialect contract, the static dialect
// registry, the data-driven parameter transformer and the error classifier.
package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/idkhub-com/reactive-agents/types"
)

// ParamRule maps one canonical request field onto an upstream body field.
// Param is a dotted output path; intermediate maps are created as needed.
type ParamRule struct {
	// Canonical is the dotted path of the source field in the canonical body.
	Canonical string
	// Param is the dotted path of the destination field in the upstream body.
	Param string
	// Default substitutes when the canonical value is absent.
	Default any
	// Required fails the transform with MissingParameter when absent.
	Required bool
	// Min/Max clamp numeric values silently.
	Min *float64
	Max *float64
	// Transform overrides the canonical read entirely. Returning ok=false
	// treats the value as absent.
	Transform func(req *types.Request) (any, bool)
}

// ParamTable is the ordered mapping applied by the transformer for one
// function of one dialect.
type ParamTable []ParamRule

// Dialect translates between the gateway's canonical wire format and one
// upstream provider's request/response/stream-chunk format.
type Dialect interface {
	// Tag returns the provider tag this dialect is registered under.
	Tag() string

	// BaseURL builds the upstream base URL for a target, honoring custom
	// hosts. It rejects non-http(s) schemes, empty hosts, out-of-range ports
	// and path traversal.
	BaseURL(target *types.Target) (string, error)

	// Headers builds the request headers, including authorization. It never
	// emits secrets beyond the ones the target configures.
	Headers(target *types.Target, fn types.FunctionName) (map[string]string, error)

	// Endpoint routes a canonical function to the upstream path.
	Endpoint(req *types.Request, target *types.Target) (string, error)

	// ParamTable returns the parameter mapping for a function, or nil when
	// the dialect does not support it.
	ParamTable(fn types.FunctionName) ParamTable

	// TransformResponse normalizes a buffered upstream response body.
	TransformResponse(body []byte, status int, header http.Header, strict bool, req *types.Request) (*types.RawResponse, error)

	// TransformChunk normalizes one de-framed upstream stream chunk into zero
	// or more serialized SSE payloads. The final upstream chunk must cause
	// "data: [DONE]\n\n" to be emitted (the pipeline appends it when the
	// dialect marks state.Finished).
	TransformChunk(raw []byte, state *types.StreamState, strict bool, req *types.Request) ([]byte, error)

	// TransformError extracts a canonical error from an upstream error body.
	TransformError(body []byte, status int) *types.Error

	// APIKeyRequired reports whether the dialect needs a credential (false
	// for local inference servers such as Triton).
	APIKeyRequired() bool

	// StreamFrameSeparator returns the upstream SSE frame separator
	// ("\n\n", "\r\n\r\n" or "\n").
	StreamFrameSeparator() string
}

// CustomFieldsValidator is implemented by dialects that validate
// provider-specific credential or override fields on the target.
type CustomFieldsValidator interface {
	ValidateCustomFields(target *types.Target) error
}

// CapabilityProvider is implemented by dialects that carry per-model
// parameter restrictions. The returned policy feeds the transformer's
// drop/rename step; a nil return means no restrictions.
type CapabilityProvider interface {
	Capabilities(fn types.FunctionName) *Capabilities
}

// registry is populated at startup via Register and read-only afterwards.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Dialect)
)

// Register adds a dialect under its tag. Later registrations replace earlier
// ones, which tests rely on.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Tag()] = d
}

// Resolve returns the dialect for a provider tag.
func Resolve(tag string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[tag]
	if !ok {
		return nil, types.NewError(types.ErrInvalidProvider,
			fmt.Sprintf("unknown provider %q", tag))
	}
	return d, nil
}

// Providers returns the sorted tags of all registered dialects.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ValidateBaseURL enforces the shared URL constraints of Dialect.BaseURL.
func ValidateBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "invalid base url").WithCause(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unsupported url scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return "", types.NewError(types.ErrInvalidRequest, "base url has no host")
	}
	if port := u.Port(); port != "" {
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n < 1 || n > 65535 {
			return "", types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("base url port %q out of range", port))
		}
	}
	if strings.Contains(u.Path, "..") {
		return "", types.NewError(types.ErrInvalidRequest, "base url path traversal rejected")
	}
	return strings.TrimRight(u.String(), "/"), nil
}
