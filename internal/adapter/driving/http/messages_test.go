package http

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Wyydra/callrelay/internal/core/domain"
)

func TestInboundKindAliases(t *testing.T) {
	cases := map[string]domain.EnvelopeKind{
		"offer":         domain.KindOffer,
		"answer":        domain.KindAnswer,
		"candidate":     domain.KindCandidate,
		"ice-candidate": domain.KindCandidate,
		"end_of_call":   domain.KindEndOfCall,
		"call-ended":    domain.KindEndOfCall,
	}
	for typ, want := range cases {
		got, ok := inboundDTO{Type: typ}.kind()
		if !ok || got != want {
			t.Fatalf("kind(%q) = %q, %v", typ, got, ok)
		}
	}
	if _, ok := (inboundDTO{Type: "join"}).kind(); ok {
		t.Fatalf("join mapped to an envelope kind")
	}
}

func TestInboundPayloadFallbacks(t *testing.T) {
	var m inboundDTO
	if err := json.Unmarshal([]byte(`{"type":"offer","target":"bob","offer":{"type":"offer","sdp":"x"}}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := string(m.payload()); got != `{"type":"offer","sdp":"x"}` {
		t.Fatalf("payload = %s", got)
	}

	m = inboundDTO{Payload: json.RawMessage("null"), Answer: json.RawMessage(`"a"`)}
	if got := string(m.payload()); got != `"a"` {
		t.Fatalf("payload = %s", got)
	}
	if (inboundDTO{}).payload() != nil {
		t.Fatalf("empty frame has a payload")
	}
}

func TestErrorCodes(t *testing.T) {
	cases := map[error]string{
		domain.ErrTargetNotFound:                              "target_not_found",
		fmt.Errorf("wrap: %w", domain.ErrNoActiveOffer):       "no_active_offer",
		fmt.Errorf("%w: unknown message type", errBadRequest): "bad_request",
		fmt.Errorf("%w: sdp", domain.ErrInvalidPayload):       "invalid_payload",
		fmt.Errorf("boom"):                                    "internal",
	}
	for err, want := range cases {
		if got := errorCode(err); got != want {
			t.Fatalf("errorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestDeliveryFrameOmitsTarget(t *testing.T) {
	b, err := json.Marshal(deliveryFrame(domain.Delivery{Kind: domain.KindEndOfCall, From: "bob"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(b); got != `{"type":"end_of_call","from":"bob"}` {
		t.Fatalf("frame = %s", got)
	}
}
