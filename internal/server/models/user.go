// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the local record of an identity provider user.
//
// Handle is nil until claimed and lowercase once set. HandleSynced is false
// while a locally committed handle still has to be pushed to the identity
// provider.
type User struct {
	ID               string
	ExternalID       string
	Email            string
	Handle           *string
	FirstName        string
	LastName         string
	Photo            string
	CreditBalance    int64
	ProfileCompleted bool
	HandleSynced     bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProfileFields are the denormalized profile attributes mirrored from the
// identity provider. They never affect handle or balance.
type ProfileFields struct {
	FirstName string
	LastName  string
	Photo     string
}
