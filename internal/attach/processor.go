// ABOUTME: Attachment validation and normalization for inbound messages
// ABOUTME: Filters to image extensions, enforces count and pixel caps, fetches concurrently

package attach

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Attachment is an inbound binary attachment as reported by the gateway.
type Attachment struct {
	Filename string
	URL      string
}

// Image is a fetched and validated attachment ready for provider upload.
type Image struct {
	Filename string
	Data     []byte
}

// Notify delivers a user-facing warning into the conversation channel.
type Notify func(ctx context.Context, text string) error

// Processor validates inbound attachments against the configured caps.
type Processor struct {
	client   *http.Client
	maxCount int
	maxDim   int
	logger   *slog.Logger
}

// New creates a Processor. maxCount bounds how many attachments one message
// may carry; maxDim bounds each image's width and height in pixels.
func New(maxCount, maxDim int, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxCount: maxCount,
		maxDim:   maxDim,
		logger:   logger.With("component", "attach"),
	}
}

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// maxAttachmentsMessage is the one-time notice when the count cap drops attachments.
func maxAttachmentsMessage(n int) string {
	return fmt.Sprintf("Currently only %d attachments per query are supported. Only the first %d will be processed. To ensure your entire inquiry is considered, please stay within the attachment limit.", n, n)
}

// oversizedMessage names a rejected image and the pixel cap.
func oversizedMessage(filename string, dim int) string {
	return fmt.Sprintf("The image %s was too large and therefore not considered. If you wish to include it, please reduce its size to under %dx%d.", filename, dim, dim)
}

// Process filters raw attachments to recognized image extensions, applies the
// count cap (dropping the remainder with a single notice), fetches the
// survivors concurrently, and rejects individual images that exceed the pixel
// cap with a per-file warning. A failed fetch skips that file; it never aborts
// the turn. Results preserve no particular order.
func (p *Processor) Process(ctx context.Context, raw []Attachment, notify Notify) []Image {
	var candidates []Attachment
	for _, a := range raw {
		if p.isImage(a.Filename) {
			candidates = append(candidates, a)
		}
	}

	if len(candidates) > p.maxCount {
		candidates = candidates[:p.maxCount]
		if err := notify(ctx, maxAttachmentsMessage(p.maxCount)); err != nil {
			p.logger.Warn("failed to send attachment cap notice", "error", err)
		}
	}

	var (
		mu     sync.Mutex
		images []Image
		wg     sync.WaitGroup
	)
	for _, a := range candidates {
		wg.Add(1)
		go func(a Attachment) {
			defer wg.Done()
			data, err := p.fetch(ctx, a.URL)
			if err != nil {
				p.logger.Warn("attachment fetch failed, skipping", "filename", a.Filename, "error", err)
				return
			}
			ok, err := p.withinPixelCap(data)
			if err != nil {
				p.logger.Warn("undecodable image attachment, skipping", "filename", a.Filename, "error", err)
				return
			}
			if !ok {
				if err := notify(ctx, oversizedMessage(a.Filename, p.maxDim)); err != nil {
					p.logger.Warn("failed to send oversized image warning", "filename", a.Filename, "error", err)
				}
				return
			}
			mu.Lock()
			images = append(images, Image{Filename: a.Filename, Data: data})
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return images
}

func (p *Processor) isImage(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// withinPixelCap decodes only the image header to read its dimensions.
func (p *Processor) withinPixelCap(data []byte) (bool, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	return cfg.Width <= p.maxDim && cfg.Height <= p.maxDim, nil
}

func (p *Processor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading attachment body: %w", err)
	}
	return data, nil
}
