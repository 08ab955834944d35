package client

import (
	"errors"

	"declarations/models"
)

var (
	ErrConfirmationPending   = errors.New("confirmation of business expense already pending")
	ErrNoPendingConfirmation = errors.New("no confirmation pending")
)

const (
	confirmedContent = "Confirmation of business expense confirmed"
	declinedContent  = "Confirmation of business expense declined"
)

// Confirmation tracks the submit handshake. It is either idle or holds the id
// of the one outstanding request.
type Confirmation struct {
	pending string
}

// Request moves to pending. A request while one is outstanding is rejected and
// the outstanding id is kept.
func (c *Confirmation) Request(id string) error {
	if c.pending != "" {
		return ErrConfirmationPending
	}
	c.pending = id
	return nil
}

func (c *Confirmation) Pending() (string, bool) {
	return c.pending, c.pending != ""
}

// Answer returns to idle and builds the hidden user message that tells the
// model what the user decided.
func (c *Confirmation) Answer(yes bool) (models.Message, error) {
	if c.pending == "" {
		return models.Message{}, ErrNoPendingConfirmation
	}

	content := declinedContent
	if yes {
		content = confirmedContent
	}
	msg := models.Message{
		ID:      models.HiddenIDPrefix + c.pending,
		Role:    models.RoleUser,
		Content: content,
	}
	c.pending = ""
	return msg, nil
}
