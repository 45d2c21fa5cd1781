// Command reactive-agents runs the AI gateway: the OpenAI-compatible
// inference surface, the control plane API and the background optimization
// and evaluation machinery, all in one process.
package main
