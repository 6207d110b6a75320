// Package gateway exposes agent runs over HTTP: a blocking chat endpoint, a
// WebSocket token stream, health and metrics. Requests authenticate with a
// shared secret header when one is configured.
package gateway
