// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

type UserID string

// User is an authenticated account. One account may drive several
// family-member personas (Profile); message rows reference a Profile,
// not the User directly.
type User struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string) (*User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Name: name}, nil
}

func validateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}

type ProfileID string

// Profile is a family-member persona inside a group.
type Profile struct {
	ID          ProfileID `json:"id"`
	UserID      UserID    `json:"userId"`
	RoomID      RoomID    `json:"roomId"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar,omitempty"`
	Online      bool      `json:"isOnline"`
}

func NewProfile(userID UserID, roomID RoomID, displayName string) (*Profile, error) {
	if err := validateName(displayName); err != nil {
		return nil, err
	}
	return &Profile{
		ID:          ProfileID(uuid.NewString()),
		UserID:      userID,
		RoomID:      roomID,
		DisplayName: displayName,
	}, nil
}
