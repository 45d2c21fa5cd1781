// Package api assembles the gateway's HTTP surface: the OpenAI-shaped
// inference routes and the /v1/reactive-agents control plane.
package api
