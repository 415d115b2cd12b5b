// ABOUTME: Messaging gateway boundary for helpdesk-bridge
// ABOUTME: Defines the inbound message shape and the operations the core needs from the chat platform

package gateway

import "context"

// Attachment is a binary attachment reference as delivered by the platform.
type Attachment struct {
	Filename string
	URL      string
}

// Inbound is one message event handed to the orchestrator.
type Inbound struct {
	EventID     string
	ChannelID   string // room the message arrived in
	ThreadID    string // set when the message already belongs to a bot thread
	Sender      string
	DisplayName string
	Text        string
	Attachments []Attachment
}

// RateLimitInfo is the quota signal for one endpoint. Known is false when the
// platform did not report quota headers.
type RateLimitInfo struct {
	Remaining  float64
	ResetAfter float64
	Known      bool
}

// Gateway is the chat-platform boundary. The core never talks to the platform
// SDK directly; everything goes through this interface so tests can fake it.
type Gateway interface {
	// CreateThread opens a new conversation thread under the given channel
	// with the given title and returns its handle.
	CreateThread(ctx context.Context, channelID, title string) (string, error)

	// Send delivers one message into a thread (or a plain channel handle).
	Send(ctx context.Context, threadID, text string) error

	// SendOperatorAlert delivers a direct message to the configured operator.
	SendOperatorAlert(ctx context.Context, text string) error

	// RateLimit queries the platform's remaining send quota for a channel.
	// The implementation knows which of its endpoints carries the signal.
	RateLimit(ctx context.Context, channelID string) (RateLimitInfo, error)

	// MaxMessageChars is the platform's per-message size limit.
	MaxMessageChars() int
}
