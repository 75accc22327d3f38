package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// Recipient addresses a transactional email either by a directory user id or by
// a literal email address. Exactly one of the two is set; the choice is made
// once at input-parsing time. When both are supplied the id wins.
type Recipient struct {
	userID string
	email  string
}

func RecipientByID(userID string) Recipient { return Recipient{userID: userID} }

func RecipientByEmail(email string) Recipient { return Recipient{email: email} }

// ParseRecipient resolves the id/address pair from an email payload into a
// Recipient.
func ParseRecipient(userID, email string) (Recipient, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)

	if userID != "" {
		return RecipientByID(userID), nil
	}
	if email == "" {
		return Recipient{}, fmt.Errorf(
			"%w: either to_recipient_id or to_recipient_email must be present", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Recipient{}, fmt.Errorf("%w: to_recipient_email %q is not a valid address", ErrValidation, email)
	}
	return RecipientByEmail(email), nil
}

// UserID returns the directory user id and whether the recipient is addressed by id.
func (r Recipient) UserID() (string, bool) { return r.userID, r.userID != "" }

// Email returns the literal address and whether the recipient is addressed by email.
func (r Recipient) Email() (string, bool) { return r.email, r.userID == "" && r.email != "" }
