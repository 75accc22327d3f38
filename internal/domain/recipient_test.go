package domain

import (
	"errors"
	"testing"
)

func TestParseRecipient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		userID    string
		email     string
		wantID    string
		wantEmail string
		wantErr   bool
	}{
		{name: "by id", userID: "u-1", wantID: "u-1"},
		{name: "by email", email: "a@b.com", wantEmail: "a@b.com"},
		{name: "id wins over email", userID: "u-1", email: "a@b.com", wantID: "u-1"},
		{name: "neither present", wantErr: true},
		{name: "invalid email address", email: "not-an-address", wantErr: true},
		{name: "whitespace only id falls back to email", userID: "  ", email: "a@b.com", wantEmail: "a@b.com"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRecipient(tt.userID, tt.email)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseRecipient() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRecipient() unexpected error = %v", err)
			}

			id, byID := got.UserID()
			email, byEmail := got.Email()

			if tt.wantID != "" {
				if !byID || id != tt.wantID {
					t.Fatalf("UserID() = (%q, %v), want (%q, true)", id, byID, tt.wantID)
				}
				if byEmail {
					t.Fatal("Email() reported true for an id recipient")
				}
				return
			}

			if !byEmail || email != tt.wantEmail {
				t.Fatalf("Email() = (%q, %v), want (%q, true)", email, byEmail, tt.wantEmail)
			}
			if byID {
				t.Fatal("UserID() reported true for an email recipient")
			}
		})
	}
}
