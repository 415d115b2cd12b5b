// ABOUTME: Inference provider boundary types and interface
// ABOUTME: Sessions, runs, uploads and summaries as the orchestrator consumes them

package provider

import (
	"context"
	"fmt"

	"github.com/2389/helpdesk-bridge/internal/citation"
)

// Message is one role-tagged entry of seed history for a session.
type Message struct {
	Role    string
	Content string
}

// ImageRef is an opaque handle to an uploaded image usable in a request.
type ImageRef struct {
	FileID string
}

// RunResult reports a completed run's model and token consumption.
type RunResult struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Response is the newest assistant message of a session, with its citation
// annotations already parsed into tagged variants.
type Response struct {
	Text        string
	Annotations []citation.Annotation
}

// RateLimitError is returned by Run when the provider rejects the run for
// quota reasons and the failure detail carried parseable numbers.
type RateLimitError struct {
	Limit        int
	Used         int
	Requested    int
	ResetSeconds float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limit: limit %d, used %d, requested %d, reset in %.2fs",
		e.Limit, e.Used, e.Requested, e.ResetSeconds)
}

// Provider is the LLM assistant boundary. The underlying service is stateless
// across turns; continuity comes from re-seeding each session with the full
// conversation history.
type Provider interface {
	// CreateSession opens a session seeded with prior history.
	CreateSession(ctx context.Context, seed []Message) (string, error)

	// AppendUserMessage adds the current user message, with optional images.
	AppendUserMessage(ctx context.Context, sessionID, text string, images []ImageRef) error

	// Run executes the assistant against the session and polls to completion.
	// A quota rejection surfaces as *RateLimitError; any other non-completed
	// status is a plain error.
	Run(ctx context.Context, sessionID string) (*RunResult, error)

	// LatestResponse returns the newest assistant message of the session.
	LatestResponse(ctx context.Context, sessionID string) (*Response, error)

	// UploadImage stores image bytes with the provider and returns a handle.
	UploadImage(ctx context.Context, filename string, data []byte) (ImageRef, error)

	// FileName resolves a provider file ID to its stored filename.
	FileName(ctx context.Context, fileID string) (string, error)

	// Summarize produces a short topic title for the given text.
	Summarize(ctx context.Context, text string) (string, error)
}
