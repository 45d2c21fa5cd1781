// Package handlers implements the HTTP handlers of the gateway: the
// OpenAI-shaped inference routes and the reactive-agents control plane.
package handlers
