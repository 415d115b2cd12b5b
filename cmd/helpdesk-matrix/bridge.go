// ABOUTME: Matrix bridge core for helpdesk-matrix
// ABOUTME: Syncs with the homeserver and routes message events into the orchestrator

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/helpdesk-bridge/internal/config"
	"github.com/2389/helpdesk-bridge/internal/dedupe"
	"github.com/2389/helpdesk-bridge/internal/gateway"
	"github.com/2389/helpdesk-bridge/internal/orchestrator"
)

// dedupeTTL bounds how long redelivered event IDs are remembered.
const dedupeTTL = 10 * time.Minute

// typingTimeout is the duration the typing indicator shows.
const typingTimeout = 30 * time.Second

// networkTimeout is the timeout for auxiliary Matrix API calls.
const networkTimeout = 10 * time.Second

// Bridge connects a Matrix homeserver to the conversation orchestrator.
type Bridge struct {
	config *config.Config
	matrix *mautrix.Client
	orch   *orchestrator.Orchestrator
	seen   *dedupe.Cache
	logger *slog.Logger

	// Display names rarely change; cache the lookups.
	namesMu sync.Mutex
	names   map[id.UserID]string

	// ctx is the parent context for message processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a new Matrix bridge.
func NewBridge(cfg *config.Config, client *mautrix.Client, orch *orchestrator.Orchestrator, logger *slog.Logger) *Bridge {
	return &Bridge{
		config: cfg,
		matrix: client,
		orch:   orch,
		seen:   dedupe.New(dedupeTTL),
		logger: logger.With("component", "bridge"),
		names:  make(map[id.UserID]string),
	}
}

// Run starts the bridge and blocks until context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.config.Matrix.Homeserver,
		"user_id", b.config.Matrix.UserID,
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	b.logger.Info("connecting to matrix homeserver")

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent turns one Matrix message event into an orchestrator call.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(b.config.Matrix.UserID) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}

	roomID := evt.RoomID.String()
	if !b.isRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	// Sync can redeliver events after reconnects; process each once.
	if b.seen.CheckAndMark(evt.ID.String()) {
		b.logger.Debug("dropping redelivered event", "event_id", evt.ID.String())
		return
	}

	msg, ok := b.buildInbound(evt, content)
	if !ok {
		return
	}

	b.logger.Info("received message",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(msg.Text, 50),
	)

	// Process in a goroutine so a long provider run does not block sync.
	go b.processMessage(b.ctx, evt.RoomID, msg)
}

// buildInbound maps a Matrix event onto the gateway's inbound shape. Text
// messages carry the command; captioned image and file messages carry the
// caption as text plus the media as an attachment.
func (b *Bridge) buildInbound(evt *event.Event, content *event.MessageEventContent) (gateway.Inbound, bool) {
	msg := gateway.Inbound{
		EventID:     evt.ID.String(),
		ChannelID:   evt.RoomID.String(),
		Sender:      evt.Sender.String(),
		DisplayName: b.displayName(evt.Sender),
	}

	if root := content.RelatesTo.GetThreadParent(); root != "" {
		msg.ThreadID = gateway.JoinThreadID(evt.RoomID.String(), root.String())
	}

	switch content.MsgType {
	case event.MsgText:
		msg.Text = content.Body
	case event.MsgImage, event.MsgFile:
		// With a filename set, Body is the caption; without one there is no
		// command text to act on.
		if content.FileName == "" || content.Body == content.FileName {
			return gateway.Inbound{}, false
		}
		msg.Text = content.Body
		msg.Attachments = []gateway.Attachment{{
			Filename: content.FileName,
			URL:      b.downloadURL(content.URL),
		}}
	default:
		return gateway.Inbound{}, false
	}

	if msg.Text == "" {
		return gateway.Inbound{}, false
	}
	return msg, true
}

// processMessage dispatches one inbound message with a typing indicator held
// for its duration.
func (b *Bridge) processMessage(ctx context.Context, roomID id.RoomID, msg gateway.Inbound) {
	b.setTyping(roomID, true)
	defer b.setTyping(roomID, false)

	b.orch.HandleMessage(ctx, msg)
}

// displayName resolves and caches a sender's display name, falling back to
// the user ID localpart.
func (b *Bridge) displayName(userID id.UserID) string {
	b.namesMu.Lock()
	if name, ok := b.names[userID]; ok {
		b.namesMu.Unlock()
		return name
	}
	b.namesMu.Unlock()

	name := userID.Localpart()
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if resp, err := b.matrix.GetDisplayName(ctx, userID); err == nil && resp.DisplayName != "" {
		name = resp.DisplayName
	}

	b.namesMu.Lock()
	b.names[userID] = name
	b.namesMu.Unlock()
	return name
}

// downloadURL converts an mxc:// content URI into a plain HTTP media URL the
// attachment processor can fetch.
func (b *Bridge) downloadURL(uri id.ContentURIString) string {
	parsed, err := uri.Parse()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/_matrix/media/v3/download/%s/%s",
		b.config.Matrix.Homeserver, parsed.Homeserver, parsed.FileID)
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.config.Matrix.AllowedRooms) == 0 {
		return true // Allow all if no filter
	}

	for _, allowed := range b.config.Matrix.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// setTyping sends typing indicator to room.
func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	_, err := b.matrix.UserTyping(ctx, roomID, typing, timeout)
	if err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
