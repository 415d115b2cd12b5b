// ABOUTME: Matrix implementation of the messaging gateway
// ABOUTME: Maps threads onto Matrix thread relations and renders replies as formatted messages

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// threadSep joins a room ID and a thread root event ID into one opaque handle.
// Neither Matrix room IDs nor event IDs contain a slash.
const threadSep = "/"

// Matrix is the mautrix-backed Gateway implementation. A conversation thread
// is a Matrix thread relation rooted at the title message.
type Matrix struct {
	client     *mautrix.Client
	homeserver string
	token      string
	operator   id.UserID
	maxChars   int
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	dmRoomID id.RoomID // lazily created operator DM room
}

// NewMatrix wraps an authenticated mautrix client.
func NewMatrix(client *mautrix.Client, homeserver, accessToken, operatorID string, maxChars int, logger *slog.Logger) *Matrix {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		client:     client,
		homeserver: strings.TrimSuffix(homeserver, "/"),
		token:      accessToken,
		operator:   id.UserID(operatorID),
		maxChars:   maxChars,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "gateway"),
	}
}

// JoinThreadID builds a thread handle from its parts.
func JoinThreadID(roomID, rootEventID string) string {
	return roomID + threadSep + rootEventID
}

// SplitThreadID splits a thread handle into room and root event IDs. The
// second return is empty for plain channel handles.
func SplitThreadID(threadID string) (roomID, rootEventID string) {
	parts := strings.SplitN(threadID, threadSep, 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return threadID, ""
}

// CreateThread posts the title message into the channel and returns the
// handle of the thread rooted at it.
func (m *Matrix) CreateThread(ctx context.Context, channelID, title string) (string, error) {
	resp, err := m.client.SendText(ctx, id.RoomID(channelID), title)
	if err != nil {
		return "", fmt.Errorf("creating thread root: %w", err)
	}
	return JoinThreadID(channelID, resp.EventID.String()), nil
}

// Send delivers one message into a thread, rendering markdown into a
// formatted body. A handle without a thread root sends into the room itself.
func (m *Matrix) Send(ctx context.Context, threadID, text string) error {
	roomID, rootID := SplitThreadID(threadID)

	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	if html, err := renderMarkdown(text); err == nil && html != text {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	if rootID != "" {
		content.RelatesTo = &event.RelatesTo{
			Type:    event.RelThread,
			EventID: id.EventID(rootID),
		}
	}

	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendOperatorAlert direct-messages the configured operator, creating the DM
// room on first use.
func (m *Matrix) SendOperatorAlert(ctx context.Context, text string) error {
	roomID, err := m.operatorRoom(ctx)
	if err != nil {
		return err
	}
	if _, err := m.client.SendText(ctx, roomID, text); err != nil {
		return fmt.Errorf("sending operator alert: %w", err)
	}
	return nil
}

func (m *Matrix) operatorRoom(ctx context.Context) (id.RoomID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dmRoomID != "" {
		return m.dmRoomID, nil
	}
	resp, err := m.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:   []id.UserID{m.operator},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		return "", fmt.Errorf("creating operator DM room: %w", err)
	}
	m.dmRoomID = resp.RoomID
	return m.dmRoomID, nil
}

// RateLimit probes the room's /messages endpoint and reads the standard quota
// headers from the response. Absent headers yield Known=false, not an error.
func (m *Matrix) RateLimit(ctx context.Context, channelID string) (RateLimitInfo, error) {
	reqURL := m.homeserver + "/_matrix/client/v3/rooms/" + url.PathEscape(channelID) + "/messages?dir=b&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return RateLimitInfo{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return RateLimitInfo{}, fmt.Errorf("fetching rate limit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RateLimitInfo{}, fmt.Errorf("rate limit check returned status %d", resp.StatusCode)
	}
	return parseRateHeaders(resp.Header), nil
}

// MaxMessageChars is the configured per-message size limit.
func (m *Matrix) MaxMessageChars() int {
	return m.maxChars
}

func parseRateHeaders(h http.Header) RateLimitInfo {
	remainingStr := h.Get("X-RateLimit-Remaining")
	resetStr := h.Get("X-RateLimit-Reset-After")
	if remainingStr == "" || resetStr == "" {
		return RateLimitInfo{}
	}
	remaining, err1 := strconv.ParseFloat(remainingStr, 64)
	reset, err2 := strconv.ParseFloat(resetStr, 64)
	if err1 != nil || err2 != nil {
		return RateLimitInfo{}
	}
	return RateLimitInfo{Remaining: remaining, ResetAfter: reset, Known: true}
}

func renderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
