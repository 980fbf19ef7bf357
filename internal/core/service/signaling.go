package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/callrelay/internal/core/domain"
	"github.com/Wyydra/callrelay/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultCandidateBufferLimit = 128

type Option func(*SignalingService)

// WithCandidateBufferLimit bounds the candidates buffered per pair and direction.
func WithCandidateBufferLimit(n int) Option {
	return func(s *SignalingService) {
		s.bufferLimit = n
	}
}

func WithPayloadValidator(v port.PayloadValidator) Option {
	return func(s *SignalingService) {
		s.validator = v
	}
}

// SignalingService registers participants, routes negotiation envelopes
// between the two members of a pair and tears sessions down when a
// connection goes away.
type SignalingService struct {
	registry    port.IdentityRegistry
	validator   port.PayloadValidator
	bufferLimit int
	sessions    *sessionTable
}

func NewSignalingService(registry port.IdentityRegistry, opts ...Option) *SignalingService {
	s := &SignalingService{
		registry:    registry,
		bufferLimit: DefaultCandidateBufferLimit,
		sessions:    newSessionTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionInfo is a point-in-time copy of a pair's session.
type SessionInfo struct {
	Pair      domain.PairKey
	Phase     domain.Phase
	Initiator domain.Identity
	Pending   map[domain.Identity]int
}

func (s *SignalingService) Join(ctx context.Context, conn port.Conn, id domain.Identity) error {
	if err := s.registry.Register(id, conn); err != nil {
		return err
	}
	logger(ctx).Info().Str("identity", id.String()).Msg("Participant joined")
	return nil
}

// Route validates env, applies it to its pair and forwards whatever the
// transition produces. The sender identity is taken from the registry, not
// from env.
func (s *SignalingService) Route(ctx context.Context, conn port.Conn, env domain.Envelope) error {
	from, ok := s.registry.IdentityOf(conn.ID())
	if !ok {
		return domain.ErrNotJoined
	}
	env.From = from

	if err := env.Validate(); err != nil {
		return err
	}
	if s.validator != nil && env.Kind != domain.KindEndOfCall {
		if err := s.validator.Validate(env.Kind, env.Payload); err != nil {
			return err
		}
	}

	key := env.Pair()
	slot := s.sessions.acquire(key)
	next, out, err := s.step(ctx, slot.session, conn.ID(), env)
	failed := s.deliver(ctx, out)
	s.sessions.release(key, slot, next)

	s.reconcile(ctx, failed)
	return err
}

// step decides the pair's next session and the envelopes to send. Called
// with the pair's slot held.
func (s *SignalingService) step(ctx context.Context, current *domain.Session, src domain.ConnID, env domain.Envelope) (*domain.Session, []domain.Envelope, error) {
	l := logger(ctx).With().
		Str("identity", env.From.String()).
		Str("target", env.Target.String()).
		Str("kind", string(env.Kind)).
		Logger()

	// the sender may have been disconnected since Route looked it up
	if id, ok := s.registry.IdentityOf(src); !ok || id != env.From {
		return current, nil, domain.ErrNotJoined
	}

	target, ok := s.registry.Lookup(env.Target)
	if !ok {
		if env.Kind == domain.KindEndOfCall {
			if current != nil && current.BoundTo(env.From, src) {
				l.Info().Msg("Call ended, peer already gone")
				return nil, nil, nil
			}
			return current, nil, nil
		}
		return current, nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, env.Target)
	}

	var out []domain.Envelope
	if current != nil && !(current.BoundTo(env.From, src) && current.BoundTo(env.Target, target.ID())) {
		// one side rejoined since this session started
		if env.Kind != domain.KindOffer {
			return current, nil, staleError(env.Kind)
		}
		gone := env.Target
		if !current.BoundTo(env.From, src) {
			gone = env.From
		}
		l.Info().Str("pair", current.Pair.String()).Msg("Replacing stale session")
		out = domain.Terminate(current, gone).Out
		current = nil
	}

	t, err := domain.Apply(current, env, s.bufferLimit)
	if err != nil {
		l.Debug().Err(err).Msg("Envelope rejected")
		return t.Session, out, err
	}
	if t.Superseded {
		l.Debug().Str("initiator", t.Session.Initiator.String()).Msg("Offer superseded by glare resolution")
	}
	if current == nil && t.Session != nil {
		t.Session.Bind(env.From, src)
		t.Session.Bind(env.Target, target.ID())
		l.Info().Msg("Session created")
	}
	if current != nil && t.Session == nil {
		l.Info().Msg("Session ended")
	}

	return t.Session, append(out, t.Out...), nil
}

// Disconnect frees the identity held by conn and ends every session it was
// part of, notifying the remaining peers. Safe to call more than once.
func (s *SignalingService) Disconnect(ctx context.Context, conn port.Conn) {
	id, ok := s.registry.Unregister(conn.ID())
	if !ok {
		return
	}
	l := logger(ctx).With().Str("identity", id.String()).Logger()
	l.Info().Msg("Participant left")

	var failed []port.Conn
	for _, key := range s.sessions.keysFor(id) {
		slot := s.sessions.acquire(key)
		current := slot.session
		if current == nil || !current.BoundTo(id, conn.ID()) {
			s.sessions.release(key, slot, current)
			continue
		}

		t := domain.Terminate(current, id)
		failed = append(failed, s.deliver(ctx, t.Out)...)
		s.sessions.release(key, slot, t.Session)
		l.Info().Str("pair", key.String()).Msg("Session ended by disconnect")
	}

	s.reconcile(ctx, failed)
}

// Identities lists registered identities. It only touches the registry.
func (s *SignalingService) Identities() []domain.Identity {
	return s.registry.Identities()
}

func (s *SignalingService) SessionCount() int {
	return s.sessions.count()
}

func (s *SignalingService) Session(a, b domain.Identity) (SessionInfo, bool) {
	key := domain.NewPairKey(a, b)
	slot := s.sessions.acquire(key)
	defer func() { s.sessions.release(key, slot, slot.session) }()

	cur := slot.session
	if cur == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		Pair:      cur.Pair,
		Phase:     cur.Phase,
		Initiator: cur.Initiator,
		Pending: map[domain.Identity]int{
			key.Low:  cur.Pending(key.Low),
			key.High: cur.Pending(key.High),
		},
	}, true
}

// deliver hands each envelope to its recipient's connection. Sends only
// enqueue, so this runs under the pair's lock and keeps per-pair order.
func (s *SignalingService) deliver(ctx context.Context, out []domain.Envelope) []port.Conn {
	var failed []port.Conn
	for _, env := range out {
		conn, ok := s.registry.Lookup(env.Target)
		if !ok {
			continue
		}
		if err := conn.Send(env.Delivery()); err != nil {
			logger(ctx).Warn().Err(err).
				Str("target", env.Target.String()).
				Str("kind", string(env.Kind)).
				Msg("Delivery failed, dropping connection")
			failed = append(failed, conn)
		}
	}
	return failed
}

// reconcile treats connections that could not take a delivery as disconnected.
func (s *SignalingService) reconcile(ctx context.Context, failed []port.Conn) {
	for _, conn := range failed {
		if err := conn.Close(); err != nil {
			logger(ctx).Debug().Err(err).Str("conn_id", conn.ID().String()).Msg("Error closing connection")
		}
		s.Disconnect(ctx, conn)
	}
}

func staleError(kind domain.EnvelopeKind) error {
	switch kind {
	case domain.KindAnswer:
		return domain.ErrNoActiveOffer
	case domain.KindCandidate:
		return domain.ErrNoActiveSession
	default:
		return nil
	}
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// IsRecoverable reports whether err is scoped to a single envelope and the
// connection should keep going.
func IsRecoverable(err error) bool {
	for _, target := range []error{
		domain.ErrAlreadyRegistered,
		domain.ErrTargetNotFound,
		domain.ErrNoActiveOffer,
		domain.ErrNoActiveSession,
		domain.ErrInvalidIdentity,
		domain.ErrInvalidEnvelope,
		domain.ErrNotJoined,
		domain.ErrCandidateBufferFull,
		domain.ErrInvalidPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
