// ABOUTME: Conversation data model for helpdesk-bridge persistence
// ABOUTME: Defines Conversation, Turn and Cost structs with their invariant-preserving mutators

package convstore

import (
	"errors"
)

// Role constants for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotAuthor is returned when someone other than the conversation author
// attempts an author-only mutation.
var ErrNotAuthor = errors.New("not the conversation author")

// ErrRatingRange is returned when a rating falls outside [1,10].
var ErrRatingRange = errors.New("rating must be between 1 and 10")

// ErrRatingSet is returned when a rating has already been recorded.
var ErrRatingSet = errors.New("rating already set")

// Turn is a single role-tagged entry in a conversation's history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Cost accumulates the dollar cost of a conversation, broken down by source.
// Total is kept equal to the sum of the parts by Add.
type Cost struct {
	Input  float64 `json:"input_cost"`
	Output float64 `json:"output_cost"`
	Image  float64 `json:"image_cost"`
	Total  float64 `json:"total_cost"`
}

// Add accumulates one turn's cost into the running totals.
func (c *Cost) Add(input, output, image float64) {
	c.Input += input
	c.Output += output
	c.Image += image
	c.Total += input + output + image
}

// Conversation is one bounded exchange between a user and the assistant,
// scoped to a single gateway thread. The author, summary and language are
// fixed at creation; turns are append-only.
type Conversation struct {
	Author         string   `json:"message_author"`
	Summary        string   `json:"message_content_summary"`
	Language       string   `json:"message_language"`
	Turns          []Turn   `json:"message_log"`
	Cost           Cost     `json:"cost_in_dollars"`
	Rating         *float64 `json:"rating,omitempty"`
	CorrectionNote string   `json:"correction_note,omitempty"`
}

// NewConversation seeds a conversation with the opening user message and the
// assistant greeting, so the turn log is never empty after creation.
func NewConversation(author, summary, language, opening, greeting string) *Conversation {
	return &Conversation{
		Author:   author,
		Summary:  summary,
		Language: language,
		Turns: []Turn{
			{Role: RoleUser, Content: opening},
			{Role: RoleAssistant, Content: greeting},
		},
	}
}

// Append adds a turn to the history. Once a conversation is in a Store,
// writes must go through Store.AppendTurn so they serialize with Save.
func (c *Conversation) Append(role, content string) {
	c.Turns = append(c.Turns, Turn{Role: role, Content: content})
}

// UserTurns counts the user-role entries in the history.
func (c *Conversation) UserTurns() int {
	n := 0
	for _, t := range c.Turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// SetRating records the author's quality score. Only the recorded author may
// rate, the value must lie in [1,10], and a rating is set at most once.
func (c *Conversation) SetRating(author string, value float64) error {
	if author != c.Author {
		return ErrNotAuthor
	}
	if value < 1 || value > 10 {
		return ErrRatingRange
	}
	if c.Rating != nil {
		return ErrRatingSet
	}
	c.Rating = &value
	return nil
}
