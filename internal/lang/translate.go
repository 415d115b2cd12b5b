// ABOUTME: Translation client for system messages
// ABOUTME: Thin HTTP client over a hosted translation endpoint, invoked as a pure function

package lang

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Translator renders text into a target language. Implementations may fail;
// callers decide whether a failure falls back to the original text.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// HTTPTranslator talks to a Google-Translate-compatible endpoint.
type HTTPTranslator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranslator creates a translator against baseURL (the endpoint root,
// e.g. "https://translate.googleapis.com").
func NewHTTPTranslator(baseURL string) *HTTPTranslator {
	return &HTTPTranslator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Translate returns text in targetLang, auto-detecting the source language.
func (t *HTTPTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.baseURL+"/translate_a/single?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("translation returned status %d: %s", resp.StatusCode, string(body))
	}

	// The endpoint answers with nested JSON arrays; the translated segments
	// sit at [0][i][0].
	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding translation response: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("empty translation response")
	}
	var segments [][]json.RawMessage
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return "", fmt.Errorf("decoding translation segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var piece string
		if err := json.Unmarshal(seg[0], &piece); err != nil {
			continue
		}
		b.WriteString(piece)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("translation response carried no text")
	}
	return b.String(), nil
}
