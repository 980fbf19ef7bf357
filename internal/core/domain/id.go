package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is the participant-chosen name a connection registers under.
type Identity string

func (id Identity) String() string {
	return string(id)
}

func (id Identity) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// ConnID identifies one accepted transport connection.
type ConnID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func ConnIDFromString(s string) (ConnID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ConnID{}, err
	}
	return ConnID(id), nil
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}
