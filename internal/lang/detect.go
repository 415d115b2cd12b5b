// ABOUTME: Language detection for inbound messages
// ABOUTME: Switches away from the default language only on confident, long-enough text

package lang

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detector decides which language a conversation's system messages use.
type Detector struct {
	defaultLang   string
	minConfidence float64
	minWords      int
}

// NewDetector creates a Detector. Short or low-confidence messages stay in
// defaultLang; raising minWords guards against misdetecting terse commands.
func NewDetector(defaultLang string, minConfidence float64, minWords int) *Detector {
	return &Detector{
		defaultLang:   defaultLang,
		minConfidence: minConfidence,
		minWords:      minWords,
	}
}

// Detect returns the language code for text, or the default language when the
// detection confidence is below the threshold or the message is too short.
func (d *Detector) Detect(text string) string {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return d.defaultLang
	}
	if info.Confidence < d.minConfidence {
		return d.defaultLang
	}
	if len(strings.Fields(text)) < d.minWords {
		return d.defaultLang
	}
	return code
}
