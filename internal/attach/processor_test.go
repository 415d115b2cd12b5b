// ABOUTME: Tests for the attachment processor
// ABOUTME: Covers extension filtering, count cap notice, pixel cap warnings and fetch isolation

package attach

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes encodes a blank PNG of the given dimensions.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type notices struct {
	mu    sync.Mutex
	texts []string
}

func (n *notices) notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

// imageServer serves fixed bytes per path.
func imageServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcess_FiltersExtensions(t *testing.T) {
	srv := imageServer(t, map[string][]byte{"/a.png": pngBytes(t, 10, 10)})
	p := New(10, 512, nil)
	n := &notices{}

	images := p.Process(context.Background(), []Attachment{
		{Filename: "a.png", URL: srv.URL + "/a.png"},
		{Filename: "notes.txt", URL: srv.URL + "/notes.txt"},
		{Filename: "clip.mp4", URL: srv.URL + "/clip.mp4"},
	}, n.notify)

	require.Len(t, images, 1)
	assert.Equal(t, "a.png", images[0].Filename)
	assert.Empty(t, n.all())
}

func TestProcess_CountCapSingleNotice(t *testing.T) {
	files := map[string][]byte{}
	var atts []Attachment
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("/img%d.png", i)
		files[path] = pngBytes(t, 10, 10)
		atts = append(atts, Attachment{Filename: fmt.Sprintf("img%d.png", i)})
	}
	srv := imageServer(t, files)
	for i := range atts {
		atts[i].URL = srv.URL + fmt.Sprintf("/img%d.png", i)
	}

	p := New(2, 512, nil)
	n := &notices{}
	images := p.Process(context.Background(), atts, n.notify)

	assert.Len(t, images, 2)
	require.Len(t, n.all(), 1)
	assert.Contains(t, n.all()[0], "first 2")
}

func TestProcess_OversizedImageWarnsAndContinues(t *testing.T) {
	srv := imageServer(t, map[string][]byte{
		"/small.png": pngBytes(t, 100, 100),
		"/big.png":   pngBytes(t, 600, 600),
	})
	p := New(10, 512, nil)
	n := &notices{}

	images := p.Process(context.Background(), []Attachment{
		{Filename: "small.png", URL: srv.URL + "/small.png"},
		{Filename: "big.png", URL: srv.URL + "/big.png"},
	}, n.notify)

	require.Len(t, images, 1)
	assert.Equal(t, "small.png", images[0].Filename)
	require.Len(t, n.all(), 1)
	assert.Contains(t, n.all()[0], "big.png")
}

func TestProcess_FetchFailureDoesNotAbortOthers(t *testing.T) {
	srv := imageServer(t, map[string][]byte{"/ok.png": pngBytes(t, 10, 10)})
	p := New(10, 512, nil)
	n := &notices{}

	images := p.Process(context.Background(), []Attachment{
		{Filename: "ok.png", URL: srv.URL + "/ok.png"},
		{Filename: "gone.png", URL: srv.URL + "/missing.png"},
	}, n.notify)

	require.Len(t, images, 1)
	assert.Equal(t, "ok.png", images[0].Filename)
	assert.Empty(t, n.all())
}

func TestProcess_UndecodableImageSkipped(t *testing.T) {
	srv := imageServer(t, map[string][]byte{"/junk.png": []byte("not an image")})
	p := New(10, 512, nil)
	n := &notices{}

	images := p.Process(context.Background(), []Attachment{
		{Filename: "junk.png", URL: srv.URL + "/junk.png"},
	}, n.notify)

	assert.Empty(t, images)
	assert.Empty(t, n.all())
}

func TestProcess_NoAttachments(t *testing.T) {
	p := New(10, 512, nil)
	n := &notices{}
	assert.Empty(t, p.Process(context.Background(), nil, n.notify))
}
