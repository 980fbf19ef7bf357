package domain

import "fmt"

type EnvelopeKind string

const (
	KindOffer     EnvelopeKind = "offer"
	KindAnswer    EnvelopeKind = "answer"
	KindCandidate EnvelopeKind = "candidate"
	KindEndOfCall EnvelopeKind = "end_of_call"
)

func (k EnvelopeKind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate, KindEndOfCall:
		return true
	}
	return false
}

// Envelope is one negotiation message on its way from one identity to another.
// Payload is never interpreted by the relay.
type Envelope struct {
	Kind    EnvelopeKind
	From    Identity
	Target  Identity
	Payload []byte
}

func NewEnvelope(kind EnvelopeKind, from, target Identity, payload []byte) Envelope {
	return Envelope{
		Kind:    kind,
		From:    from,
		Target:  target,
		Payload: payload,
	}
}

func (e Envelope) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, e.Kind)
	}
	if e.From.Validate() != nil {
		return fmt.Errorf("%w: missing sender", ErrInvalidEnvelope)
	}
	if e.Target.Validate() != nil {
		return fmt.Errorf("%w: missing target", ErrInvalidEnvelope)
	}
	if e.From == e.Target {
		return fmt.Errorf("%w: sender and target are the same", ErrInvalidEnvelope)
	}
	return nil
}

func (e Envelope) Pair() PairKey {
	return NewPairKey(e.From, e.Target)
}

// Delivery strips the target: the recipient already knows who it is.
func (e Envelope) Delivery() Delivery {
	return Delivery{
		Kind:    e.Kind,
		From:    e.From,
		Payload: e.Payload,
	}
}

// Delivery is what a recipient connection receives.
type Delivery struct {
	Kind    EnvelopeKind
	From    Identity
	Payload []byte
}
