// ABOUTME: Command handlers independent of the main turn state machine
// ABOUTME: Review, correction, knowledge refresh and last-update query

package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/2389/helpdesk-bridge/internal/convstore"
	"github.com/2389/helpdesk-bridge/internal/gateway"
)

// handleReview records the author's quality rating for the conversation the
// message arrived in. Any invalid submission answers with the failure message
// and leaves the conversation untouched.
func (o *Orchestrator) handleReview(ctx context.Context, msg gateway.Inbound) {
	unlock := o.lockConversation(msg.ThreadID)
	defer unlock()

	conv, ok := o.conversationFor(msg)
	if !ok {
		o.reply(ctx, msg, reviewFailureMessage)
		return
	}

	text := stripCommand(msg.Text, o.commands.Review)
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		o.reply(ctx, msg, o.translate(ctx, reviewFailureMessage, conv.Language))
		return
	}

	if err := o.store.SetRating(msg.ThreadID, msg.Sender, value); err != nil {
		o.logger.Debug("rating rejected", "thread_id", msg.ThreadID, "error", err)
		o.reply(ctx, msg, o.translate(ctx, reviewFailureMessage, conv.Language))
		return
	}

	o.saveStore()
	o.reply(ctx, msg, o.translate(ctx, reviewSuccessMessage, conv.Language))
}

// handleCorrection stores a free-text correction verbatim. Only the recorded
// author or a privileged user may submit one.
func (o *Orchestrator) handleCorrection(ctx context.Context, msg gateway.Inbound) {
	unlock := o.lockConversation(msg.ThreadID)
	defer unlock()

	conv, ok := o.conversationFor(msg)
	if !ok || (msg.Sender != conv.Author && !o.privileged[msg.Sender]) {
		o.reply(ctx, msg, permissionDeniedMessage)
		return
	}

	if err := o.store.SetCorrection(msg.ThreadID, stripCommand(msg.Text, o.commands.Correction)); err != nil {
		o.logger.Debug("correction rejected", "thread_id", msg.ThreadID, "error", err)
		return
	}
	o.saveStore()
	o.reply(ctx, msg, o.translate(ctx, "Thanks, your correction has been recorded.", conv.Language))
}

// handleRefresh triggers the external knowledge ingestion pipeline.
// Privileged users only; the trigger is fire-and-forget.
func (o *Orchestrator) handleRefresh(ctx context.Context, msg gateway.Inbound) {
	if !o.privileged[msg.Sender] {
		o.reply(ctx, msg, permissionDeniedMessage)
		return
	}
	if o.refresher == nil {
		o.logger.Warn("refresh requested but no refresher configured")
		return
	}
	o.refresher.Trigger(ctx)
	o.reply(ctx, msg, "Knowledge file refresh started.")
}

// handleLastUpdate answers with the stored last-refresh timestamp.
func (o *Orchestrator) handleLastUpdate(ctx context.Context, msg gateway.Inbound) {
	if o.refresher == nil {
		o.reply(ctx, msg, lastUpdateUnknownMessage)
		return
	}
	ts, ok := o.refresher.LastUpdate()
	if !ok {
		o.reply(ctx, msg, lastUpdateUnknownMessage)
		return
	}
	o.reply(ctx, msg, lastUpdateMessage(ts.Format("2006-01-02 15:04:05 MST")))
}

// conversationFor looks up the conversation a command message belongs to.
func (o *Orchestrator) conversationFor(msg gateway.Inbound) (*convstore.Conversation, bool) {
	if msg.ThreadID == "" {
		return nil, false
	}
	return o.store.Get(msg.ThreadID)
}

// reply answers into the thread the command arrived in, or the channel when
// the command came in outside any thread.
func (o *Orchestrator) reply(ctx context.Context, msg gateway.Inbound, text string) {
	target := msg.ThreadID
	if target == "" {
		target = msg.ChannelID
	}
	if err := o.gw.Send(ctx, target, text); err != nil {
		o.logger.Error("failed to send command reply", "error", err)
	}
}
