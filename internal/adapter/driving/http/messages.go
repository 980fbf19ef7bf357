package http

import (
	"encoding/json"
	"errors"

	"github.com/Wyydra/callrelay/internal/core/domain"
)

const (
	typeJoin   = "join"
	typeJoined = "joined"
	typeError  = "error"
)

var errBadRequest = errors.New("bad request")

// inboundDTO is every frame a participant may send. The offer/answer/candidate
// fields carry the payload the way the original browser client sent it.
type inboundDTO struct {
	Type      string          `json:"type"`
	Identity  string          `json:"identity,omitempty"`
	Target    string          `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (m inboundDTO) kind() (domain.EnvelopeKind, bool) {
	switch m.Type {
	case "offer":
		return domain.KindOffer, true
	case "answer":
		return domain.KindAnswer, true
	case "candidate", "ice-candidate":
		return domain.KindCandidate, true
	case "end_of_call", "call-ended":
		return domain.KindEndOfCall, true
	}
	return "", false
}

func (m inboundDTO) payload() []byte {
	for _, p := range []json.RawMessage{m.Payload, m.Offer, m.Answer, m.Candidate} {
		if len(p) > 0 && string(p) != "null" {
			return p
		}
	}
	return nil
}

type outboundDTO struct {
	Type     string          `json:"type"`
	From     string          `json:"from,omitempty"`
	Identity string          `json:"identity,omitempty"`
	ConnID   string          `json:"connId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	Target   string          `json:"target,omitempty"`
}

func deliveryFrame(d domain.Delivery) outboundDTO {
	return outboundDTO{
		Type:    string(d.Kind),
		From:    d.From.String(),
		Payload: d.Payload,
	}
}

func joinedFrame(id domain.Identity, connID domain.ConnID) outboundDTO {
	return outboundDTO{
		Type:     typeJoined,
		Identity: id.String(),
		ConnID:   connID.String(),
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrAlreadyRegistered, "already_registered"},
	{domain.ErrTargetNotFound, "target_not_found"},
	{domain.ErrNoActiveOffer, "no_active_offer"},
	{domain.ErrNoActiveSession, "no_active_session"},
	{domain.ErrInvalidIdentity, "invalid_identity"},
	{domain.ErrInvalidEnvelope, "invalid_envelope"},
	{domain.ErrNotJoined, "not_joined"},
	{domain.ErrCandidateBufferFull, "candidate_buffer_full"},
	{domain.ErrInvalidPayload, "invalid_payload"},
	{errBadRequest, "bad_request"},
}

func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func errorFrame(err error, target string) outboundDTO {
	return outboundDTO{
		Type:    typeError,
		Code:    errorCode(err),
		Message: err.Error(),
		Target:  target,
	}
}
