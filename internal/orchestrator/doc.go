// Package orchestrator drives the help-turn state machine.
//
// One inbound message flows through rate and storage gates, conversation
// resolution, attachment handling, a provider run, citation resolution and
// cost accounting before the reply is persisted and dispatched in chunks.
// The review, correction, refresh and last-update commands are handled here
// too, independent of the main turn path.
package orchestrator
