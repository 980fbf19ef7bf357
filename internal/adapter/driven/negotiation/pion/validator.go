package pion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Wyydra/callrelay/internal/core/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// Validator implements port.PayloadValidator for browser-style payloads:
// RTCSessionDescriptionInit for offers and answers, RTCIceCandidateInit for
// candidates.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(kind domain.EnvelopeKind, payload []byte) error {
	switch kind {
	case domain.KindOffer:
		return validateDescription(payload, webrtc.SDPTypeOffer)
	case domain.KindAnswer:
		return validateDescription(payload, webrtc.SDPTypeAnswer)
	case domain.KindCandidate:
		return validateCandidate(payload)
	default:
		return nil
	}
}

func validateDescription(payload []byte, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("%w: session description: %v", domain.ErrInvalidPayload, err)
	}
	if desc.Type != want {
		return fmt.Errorf("%w: sdp type %q, want %q", domain.ErrInvalidPayload, desc.Type.String(), want.String())
	}

	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: sdp: %v", domain.ErrInvalidPayload, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: sdp has no media sections", domain.ErrInvalidPayload)
	}
	return nil
}

func validateCandidate(payload []byte) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &init); err != nil {
		return fmt.Errorf("%w: candidate: %v", domain.ErrInvalidPayload, err)
	}
	// end-of-candidates marker
	if init.Candidate == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(init.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("%w: candidate: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}
