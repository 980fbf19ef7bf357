package domain

import "fmt"

type Phase int

const (
	// PhaseIdle is never stored: a pair without a session is idle.
	PhaseIdle Phase = iota
	PhaseOffered
	PhaseConnected
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOffered:
		return "offered"
	case PhaseConnected:
		return "connected"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Session is the negotiation state of one pair for one call attempt.
type Session struct {
	Pair      PairKey
	Phase     Phase
	Initiator Identity

	conns   map[Identity]ConnID
	pending map[Identity]*CandidateQueue // keyed by sender
}

func NewSession(initiator, peer Identity, bufferLimit int) *Session {
	return &Session{
		Pair:      NewPairKey(initiator, peer),
		Phase:     PhaseOffered,
		Initiator: initiator,
		conns:     make(map[Identity]ConnID, 2),
		pending: map[Identity]*CandidateQueue{
			initiator: NewCandidateQueue(bufferLimit),
			peer:      NewCandidateQueue(bufferLimit),
		},
	}
}

// Bind records the connection a participant was using when the session was created.
func (s *Session) Bind(id Identity, conn ConnID) {
	s.conns[id] = conn
}

// BoundTo reports whether id takes part in s through conn.
func (s *Session) BoundTo(id Identity, conn ConnID) bool {
	c, ok := s.conns[id]
	return ok && c == conn
}

func (s *Session) Peer() Identity {
	return s.Pair.Peer(s.Initiator)
}

// Pending returns how many candidates sent by from are still buffered.
func (s *Session) Pending(from Identity) int {
	q, ok := s.pending[from]
	if !ok {
		return 0
	}
	return q.Len()
}

// Transition is the result of applying one envelope to a pair.
type Transition struct {
	// Session is the pair's state afterwards; nil means the pair is idle.
	Session *Session
	// Out lists envelopes to deliver, in order.
	Out []Envelope
	// Superseded is set when an offer lost glare resolution and was discarded.
	Superseded bool
}

// Apply runs the transition table for env against the current session of its
// pair (nil when idle). On error the session is returned unchanged and
// nothing is delivered.
func Apply(s *Session, env Envelope, bufferLimit int) (Transition, error) {
	switch env.Kind {
	case KindOffer:
		return applyOffer(s, env, bufferLimit), nil
	case KindAnswer:
		return applyAnswer(s, env)
	case KindCandidate:
		return applyCandidate(s, env)
	case KindEndOfCall:
		return applyEndOfCall(s, env), nil
	default:
		return Transition{Session: s}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, env.Kind)
	}
}

func applyOffer(s *Session, env Envelope, bufferLimit int) Transition {
	if s == nil {
		return Transition{
			Session: NewSession(env.From, env.Target, bufferLimit),
			Out:     []Envelope{env},
		}
	}

	// glare: the smaller identity keeps or takes the initiator role
	if env.From != s.Initiator && s.Initiator < env.From {
		return Transition{Session: s, Superseded: true}
	}

	s.Initiator = env.From
	s.Phase = PhaseOffered
	return Transition{Session: s, Out: []Envelope{env}}
}

func applyAnswer(s *Session, env Envelope) (Transition, error) {
	if s == nil || s.Phase != PhaseOffered || env.From == s.Initiator {
		return Transition{Session: s}, ErrNoActiveOffer
	}

	s.Phase = PhaseConnected
	out := []Envelope{env}
	out = append(out, s.flush(s.Initiator)...)
	out = append(out, s.flush(env.From)...)
	return Transition{Session: s, Out: out}, nil
}

func applyCandidate(s *Session, env Envelope) (Transition, error) {
	if s == nil {
		return Transition{}, ErrNoActiveSession
	}

	switch s.Phase {
	case PhaseOffered:
		if err := s.pending[env.From].Push(env.Payload); err != nil {
			return Transition{Session: s}, err
		}
		return Transition{Session: s}, nil
	case PhaseConnected:
		return Transition{Session: s, Out: []Envelope{env}}, nil
	default:
		return Transition{Session: s}, ErrNoActiveSession
	}
}

func applyEndOfCall(s *Session, env Envelope) Transition {
	if s == nil {
		return Transition{}
	}
	s.Phase = PhaseEnded
	return Transition{Out: []Envelope{env}}
}

// Terminate ends s because gone left, producing the EndOfCall the remaining
// peer would have received had gone hung up itself.
func Terminate(s *Session, gone Identity) Transition {
	if s == nil {
		return Transition{}
	}
	return applyEndOfCall(s, NewEnvelope(KindEndOfCall, gone, s.Pair.Peer(gone), nil))
}

func (s *Session) flush(from Identity) []Envelope {
	q, ok := s.pending[from]
	if !ok {
		return nil
	}
	to := s.Pair.Peer(from)
	var out []Envelope
	for _, p := range q.Drain() {
		out = append(out, NewEnvelope(KindCandidate, from, to, p))
	}
	return out
}
