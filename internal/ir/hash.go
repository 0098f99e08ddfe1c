package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainTransition = "entitybridge/transition/v1"
	DomainHandshake  = "entitybridge/handshake/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransitionRecord identifies one successful backend call in the transition log.
type TransitionRecord struct {
	EntityID  string
	Action    string
	FromState string
	ToState   string
	Version   int64
	Seq       int64
}

// TransitionID computes the content-addressed id of a transition log record.
// The same record always hashes to the same id, so replaying a log is idempotent.
// LogVersion is mixed in with the record fields.
func TransitionID(r TransitionRecord) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"entity_id":   r.EntityID,
		"action":      r.Action,
		"from_state":  r.FromState,
		"to_state":    r.ToState,
		"version":     r.Version,
		"seq":         r.Seq,
		"log_version": LogVersion,
	})
	if err != nil {
		return "", fmt.Errorf("TransitionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransition, canonical), nil
}

// HandshakeDigest fingerprints a handshake payload. Hosts log it so a peer's
// view of its initial state can be correlated without logging field data.
func HandshakeDigest(payload map[string]any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("HandshakeDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainHandshake, canonical), nil
}

// MustTransitionID is like TransitionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransitionID(r TransitionRecord) string {
	id, err := TransitionID(r)
	if err != nil {
		panic(err)
	}
	return id
}
