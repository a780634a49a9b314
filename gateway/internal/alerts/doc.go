// Package alerts notifies webhooks when the gateway health degrades or
// recovers. Targets are Slack, Teams or generic HTTP endpoints.
package alerts
