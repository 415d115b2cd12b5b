// ABOUTME: Tests for gateway helpers
// ABOUTME: Covers thread handle encoding and rate-limit header parsing

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadIDRoundTrip(t *testing.T) {
	handle := JoinThreadID("!room:example.org", "$root123")
	room, root := SplitThreadID(handle)
	assert.Equal(t, "!room:example.org", room)
	assert.Equal(t, "$root123", root)
}

func TestSplitThreadID_PlainChannel(t *testing.T) {
	room, root := SplitThreadID("!room:example.org")
	assert.Equal(t, "!room:example.org", room)
	assert.Empty(t, root)
}

func TestParseRateHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "3")
	h.Set("X-RateLimit-Reset-After", "1.573")
	info := parseRateHeaders(h)
	assert.True(t, info.Known)
	assert.Equal(t, 3.0, info.Remaining)
	assert.Equal(t, 1.573, info.ResetAfter)
}

func TestParseRateHeaders_Missing(t *testing.T) {
	assert.False(t, parseRateHeaders(http.Header{}).Known)
}

func TestParseRateHeaders_Garbage(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "many")
	h.Set("X-RateLimit-Reset-After", "soon")
	assert.False(t, parseRateHeaders(h).Known)
}

func TestRateLimit_ProbesRoomMessages(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-RateLimit-Remaining", "5")
		w.Header().Set("X-RateLimit-Reset-After", "2.5")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	m := NewMatrix(nil, srv.URL, "tok", "@op:example.org", 2000, nil)
	info, err := m.RateLimit(context.Background(), "!room:example.org")
	require.NoError(t, err)

	assert.Equal(t, "/_matrix/client/v3/rooms/"+url.PathEscape("!room:example.org")+"/messages", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.True(t, info.Known)
	assert.Equal(t, 5.0, info.Remaining)
	assert.Equal(t, 2.5, info.ResetAfter)
}

func TestRenderMarkdown(t *testing.T) {
	html, err := renderMarkdown("**[1/2]** chunk")
	assert.NoError(t, err)
	assert.Contains(t, html, "<strong>[1/2]</strong>")
}
