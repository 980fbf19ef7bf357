package port

import "github.com/Wyydra/callrelay/internal/core/domain"

// PayloadValidator checks the shape of a negotiation payload before it is
// routed. Errors should wrap domain.ErrInvalidPayload.
type PayloadValidator interface {
	Validate(kind domain.EnvelopeKind, payload []byte) error
}
