// Package metrics collects the gateway's Prometheus metrics: served
// requests, upstream calls and retries, cache outcomes, optimizer arm
// selections and rewards, and evaluator executions. Each Collector owns its
// own registry, exposed through Handler.
package metrics
