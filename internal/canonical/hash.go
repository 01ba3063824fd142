package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roach88/actsim/internal/sim"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainEvent = "actsim/event/v1"
	DomainState = "actsim/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed identity of an event.
// A nil payload and an empty payload share an identity, as do timestamps
// denoting the same instant in different zones.
func EventID(e sim.Event) (string, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	obj := map[string]any{
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":      string(e.Type),
		"act":       e.Act,
		"payload":   payload,
	}
	data, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	return hashWithDomain(DomainEvent, data), nil
}

// StateDigest computes a digest over the full canonical snapshot. Two states
// are identical for replay purposes iff their digests match.
func StateDigest(s sim.State) (string, error) {
	data, err := Marshal(s)
	if err != nil {
		return "", fmt.Errorf("StateDigest: %w", err)
	}
	return hashWithDomain(DomainState, data), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when the payload is known to be JSON-encodable.
func MustEventID(e sim.Event) string {
	id, err := EventID(e)
	if err != nil {
		panic(err)
	}
	return id
}
