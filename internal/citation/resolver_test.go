// ABOUTME: Tests for the citation resolver
// ABOUTME: Covers marker substitution order, both footnote variants and marker stripping

package citation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapNamer map[string]string

func (m mapNamer) FileName(_ context.Context, fileID string) (string, error) {
	name, ok := m[fileID]
	if !ok {
		return "", errors.New("unknown file")
	}
	return name, nil
}

func TestResolve_FileCitation(t *testing.T) {
	text := "Seeds are generated from settings【4:0†source】 and shared as codes."
	anns := []Annotation{
		{Text: "【4:0†source】", Kind: KindFileCitation, FileID: "file-1"},
	}
	res, err := Resolve(context.Background(), text, anns, mapNamer{"file-1": "seed-guide.json"})
	require.NoError(t, err)
	assert.Equal(t, "Seeds are generated from settings [0] and shared as codes.", res.Text)
	require.Len(t, res.Footnotes, 1)
	assert.Equal(t, "[0]: seed-guide.json", res.Footnotes[0])
}

func TestResolve_FilePathCitation(t *testing.T) {
	text := "Download the preset【1†file】."
	anns := []Annotation{
		{Text: "【1†file】", Kind: KindFilePath, FileID: "file-2"},
	}
	res, err := Resolve(context.Background(), text, anns, mapNamer{"file-2": "preset.zip"})
	require.NoError(t, err)
	assert.Equal(t, "Download the preset [0].", res.Text)
	assert.Equal(t, "[0] Click <here> to download preset.zip", res.Footnotes[0])
}

func TestResolve_MultipleAnnotationsEnumerationOrder(t *testing.T) {
	text := "First【b】 then【a】."
	anns := []Annotation{
		{Text: "【a】", Kind: KindFileCitation, FileID: "fa"},
		{Text: "【b】", Kind: KindFileCitation, FileID: "fb"},
	}
	res, err := Resolve(context.Background(), text, anns, mapNamer{"fa": "a.txt", "fb": "b.txt"})
	require.NoError(t, err)
	// Index follows annotation-list order, not left-to-right text order.
	assert.Equal(t, "First [1] then [0].", res.Text)
	assert.Equal(t, []string{"[0]: a.txt", "[1]: b.txt"}, res.Footnotes)
}

func TestResolve_FirstOccurrenceCollision(t *testing.T) {
	// The annotated span repeats earlier in the text; the first occurrence is
	// replaced. This mirrors the substring-match semantics the resolver keeps.
	text := "source text about source【cite】"
	anns := []Annotation{{Text: "source", Kind: KindFileCitation, FileID: "f"}}
	res, err := Resolve(context.Background(), text, anns, mapNamer{"f": "f.txt"})
	require.NoError(t, err)
	assert.Equal(t, " [0] text about source【cite】", res.Text)
}

func TestResolve_UnknownFileFails(t *testing.T) {
	anns := []Annotation{{Text: "x", Kind: KindFileCitation, FileID: "missing"}}
	_, err := Resolve(context.Background(), "x", anns, mapNamer{})
	assert.Error(t, err)
}

func TestResolve_NoAnnotations(t *testing.T) {
	res, err := Resolve(context.Background(), "plain text", nil, mapNamer{})
	require.NoError(t, err)
	assert.Equal(t, "plain text", res.Text)
	assert.Empty(t, res.Footnotes)
}

func TestStripMarkers(t *testing.T) {
	annotated := "Seeds come from settings [0] and presets [1]."
	assert.Equal(t, "Seeds come from settings and presets.", StripMarkers(annotated, 2))
}

func TestStripMarkers_LeavesFootnotes(t *testing.T) {
	// Footnote lines use "[0]:" without the leading space marker form.
	text := "answer [0]\n[0]: guide.json"
	assert.Equal(t, "answer\n[0]: guide.json", StripMarkers(text, 1))
}
