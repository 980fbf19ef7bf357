package domain

import "errors"

var (
	ErrAlreadyRegistered   = errors.New("identity already registered")
	ErrTargetNotFound      = errors.New("target not found")
	ErrNoActiveOffer       = errors.New("no active offer")
	ErrNoActiveSession     = errors.New("no active session")
	ErrInvalidIdentity     = errors.New("invalid identity")
	ErrInvalidEnvelope     = errors.New("invalid envelope")
	ErrNotJoined           = errors.New("connection has not joined")
	ErrCandidateBufferFull = errors.New("candidate buffer full")
	ErrInvalidPayload      = errors.New("invalid payload")
)
