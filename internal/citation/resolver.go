// ABOUTME: Citation resolution for assistant output
// ABOUTME: Replaces provider annotation spans with numbered markers and builds footnote lines

package citation

import (
	"context"
	"fmt"
	"strings"
)

// Kind discriminates the two annotation variants the provider emits.
type Kind int

const (
	// KindFileCitation references a stored knowledge file.
	KindFileCitation Kind = iota
	// KindFilePath references a downloadable file produced by the assistant.
	KindFilePath
)

// Annotation is one provider-supplied reference from output text to a source
// file, resolved into a tagged variant when the response is parsed.
type Annotation struct {
	Text   string
	Kind   Kind
	FileID string
}

// FileNamer resolves a provider file ID to its stored filename.
type FileNamer interface {
	FileName(ctx context.Context, fileID string) (string, error)
}

// Result carries the marker-annotated text and its footnotes. The annotated
// text goes into the conversation log; StripMarkers produces the user-facing
// form.
type Result struct {
	Text      string
	Footnotes []string
}

// Resolve replaces each annotated span with a bracketed index marker, in
// annotation-list order, and builds a parallel footnote line per annotation.
// Replacement uses first-occurrence substring match: if the annotated span
// also occurs earlier in the text the wrong occurrence is replaced. The
// provider does not supply byte offsets here, so that behavior is kept as the
// minimum compatible semantics.
func Resolve(ctx context.Context, text string, anns []Annotation, files FileNamer) (Result, error) {
	footnotes := make([]string, 0, len(anns))
	for i, ann := range anns {
		text = strings.Replace(text, ann.Text, fmt.Sprintf(" [%d]", i), 1)

		name, err := files.FileName(ctx, ann.FileID)
		if err != nil {
			return Result{}, fmt.Errorf("resolving cited file %s: %w", ann.FileID, err)
		}
		switch ann.Kind {
		case KindFilePath:
			footnotes = append(footnotes, fmt.Sprintf("[%d] Click <here> to download %s", i, name))
		default:
			footnotes = append(footnotes, fmt.Sprintf("[%d]: %s", i, name))
		}
	}
	return Result{Text: text, Footnotes: footnotes}, nil
}

// StripMarkers removes the n bracketed markers inserted by Resolve, yielding
// the text shown to the user. Footnote lines are unaffected.
func StripMarkers(text string, n int) string {
	for i := 0; i < n; i++ {
		text = strings.ReplaceAll(text, fmt.Sprintf(" [%d]", i), "")
	}
	return text
}
