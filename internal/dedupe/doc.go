// Package dedupe provides message deduplication using a time-based cache
// to prevent processing duplicate gateway events within a configurable window.
package dedupe
