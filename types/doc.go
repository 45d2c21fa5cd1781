// Package types provides the canonical wire model shared across the gateway.
// This package has ZERO dependencies on other reactive-agents packages to
// avoid circular imports. All other packages should import types from here.
package types
