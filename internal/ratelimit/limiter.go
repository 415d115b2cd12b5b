// ABOUTME: Rate limit gate for inbound turns
// ABOUTME: Fails soft on quota lookup errors and notifies the user when the limit is hit

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/helpdesk-bridge/internal/gateway"
)

// rateLimitThreadTitle names the thread created to deliver a rate-limit notice
// when the user has no conversation yet.
const rateLimitThreadTitle = "Rate Limit Warning"

// Limiter checks the gateway's quota signal and gates turn processing.
type Limiter struct {
	gw     gateway.Gateway
	logger *slog.Logger
}

// New creates a Limiter over the given gateway.
func New(gw gateway.Gateway, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{gw: gw, logger: logger.With("component", "ratelimit")}
}

// Check queries the quota signal for a channel. Any failure is logged and
// reported as unknown rather than returned: callers treat unknown as "assume
// not limited, but do not over-send".
func (l *Limiter) Check(ctx context.Context, channelID string) gateway.RateLimitInfo {
	info, err := l.gw.RateLimit(ctx, channelID)
	if err != nil {
		l.logger.Error("failed to check rate limit", "channel_id", channelID, "error", err)
		return gateway.RateLimitInfo{}
	}
	return info
}

// Gate aborts the turn when one or fewer sends remain. The user is told the
// reset delay in a thread, which is created first when the message did not
// arrive in one. Returns true when the caller must abort.
func (l *Limiter) Gate(ctx context.Context, info gateway.RateLimitInfo, channelID, threadID string) bool {
	if !info.Known || info.Remaining > 1 {
		return false
	}

	target := threadID
	if target == "" {
		created, err := l.gw.CreateThread(ctx, channelID, rateLimitThreadTitle)
		if err != nil {
			l.logger.Error("failed to create rate limit thread", "error", err)
			return true
		}
		target = created
	}

	notice := fmt.Sprintf("You have been rate limited. Please try again in %.2f seconds.", info.ResetAfter)
	if err := l.gw.Send(ctx, target, notice); err != nil {
		l.logger.Error("failed to send rate limit notice", "error", err)
	}
	return true
}
