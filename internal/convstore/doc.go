// Package convstore provides the durable conversation mapping and its data model.
// Conversations are kept in memory and rewritten to a single JSON document on save.
package convstore
