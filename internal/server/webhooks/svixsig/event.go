package svixsig

import (
	"encoding/json"
	"strings"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

type Event struct {
	Type string   `json:"type"`
	Data UserData `json:"data"`

	// DeliveryID is the svix-id header value, not part of the body.
	DeliveryID string `json:"-"`
	// Raw is the verified request body.
	Raw json.RawMessage `json:"-"`
}

type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type UserData struct {
	ID                    string         `json:"id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	Username              *string        `json:"username"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	Deleted               bool           `json:"deleted"`
}

// PrimaryEmail returns the primary address, falling back to the first one.
func (u UserData) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if u.PrimaryEmailAddressID != "" && e.ID == u.PrimaryEmailAddressID {
			return strings.TrimSpace(e.EmailAddress)
		}
	}
	if len(u.EmailAddresses) > 0 {
		return strings.TrimSpace(u.EmailAddresses[0].EmailAddress)
	}
	return ""
}
