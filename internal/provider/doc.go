// Package provider wraps the hosted assistant service. Each turn re-seeds a
// provider session with the full conversation history, runs the assistant
// against it, and reads back the newest message with its citation annotations.
package provider
