// Package lang wraps the language detection and translation collaborators.
package lang
