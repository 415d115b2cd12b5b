// ABOUTME: Tests for language detection gating and the translation client
// ABOUTME: Uses a fake translation endpoint; detection asserts the default-language fallbacks

package lang

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_EnglishSentence(t *testing.T) {
	d := NewDetector("en", 0.6, 5)
	assert.Equal(t, "en", d.Detect("How do I start a new seed for the randomizer?"))
}

func TestDetect_ShortMessageStaysDefault(t *testing.T) {
	d := NewDetector("en", 0.6, 5)
	// Fewer words than the minimum, regardless of what the detector thinks.
	assert.Equal(t, "en", d.Detect("hola amigo"))
}

func TestDetect_ConfidentForeignText(t *testing.T) {
	d := NewDetector("en", 0.6, 5)
	got := d.Detect("¿Cómo puedo empezar una nueva semilla para el juego aleatorio?")
	assert.Equal(t, "es", got)
}

func TestDetect_EmptyText(t *testing.T) {
	d := NewDetector("en", 0.6, 5)
	assert.Equal(t, "en", d.Detect(""))
}

func TestHTTPTranslator_Translate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "es", r.URL.Query().Get("tl"))
		assert.Equal(t, "auto", r.URL.Query().Get("sl"))
		_, _ = w.Write([]byte(`[[["Hola","Hello",null,null,10]],null,"en"]`))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL)
	got, err := tr.Translate(context.Background(), "Hello", "es")
	require.NoError(t, err)
	assert.Equal(t, "Hola", got)
}

func TestHTTPTranslator_MultiSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[["Hola. ","Hello. ",null],["Adiós.","Bye.",null]],null,"en"]`))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL)
	got, err := tr.Translate(context.Background(), "Hello. Bye.", "es")
	require.NoError(t, err)
	assert.Equal(t, "Hola. Adiós.", got)
}

func TestHTTPTranslator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL)
	_, err := tr.Translate(context.Background(), "Hello", "es")
	assert.Error(t, err)
}

func TestHTTPTranslator_GarbageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL)
	_, err := tr.Translate(context.Background(), "Hello", "es")
	assert.Error(t, err)
}
