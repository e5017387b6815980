package spell

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// RawData is an opaque, already-encoded CBOR value. App state is carried
// around without interpretation, so raw bytes are kept as-is.
type RawData = cbor.RawMessage

// Payload is the complete envelope content: the spell plus the proofs
// attached to it. The proofs are not part of the proven statement, which is
// why they live next to the spell rather than inside it.
type Payload struct {
	Spell  Spell   `cbor:"0,keyasint" json:"spell"`
	Proofs []Proof `cbor:"1,keyasint,omitempty" json:"proofs,omitempty"`
}

var (
	encMode       cbor.EncMode
	decMode       cbor.DecMode
	strictDecMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: sorted map keys, shortest-form ints.
	// Re-encoding a decoded payload must reproduce the exact input bytes.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		TagsMd:      cbor.TagsForbidden,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(err)
	}
	decOpts.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	if strictDecMode, err = decOpts.DecMode(); err != nil {
		panic(err)
	}
}

// MarshalDeterministic encodes any value with the deterministic encoding
// rules used for spell payloads and proven statements.
func MarshalDeterministic(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Serialize encodes the payload deterministically.
func (p *Payload) Serialize() ([]byte, error) {
	return encMode.Marshal(p)
}

// NewPayloadFromBytes decodes and validates a spell payload. In strict mode
// map entries not known to this decoder are rejected; otherwise they are
// dropped. Trailing bytes after the payload are always an error.
func NewPayloadFromBytes(raw []byte, strict bool) (*Payload, error) {
	dm := decMode
	if strict {
		dm = strictDecMode
	}
	p := &Payload{}
	if err := dm.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("invalid spell payload: %w", err)
	}
	if err := p.Spell.validate(); err != nil {
		return nil, fmt.Errorf("invalid spell: %w", err)
	}
	return p, nil
}

// HasUnknownFields reports whether the payload carries map entries this
// decoder does not know about. Used to surface a warning when decoding
// leniently.
func HasUnknownFields(raw []byte) bool {
	err := strictDecMode.Unmarshal(raw, &Payload{})
	var unknown *cbor.UnknownFieldError
	return errors.As(err, &unknown)
}

// Serialize encodes the spell alone, without proofs.
func (s *Spell) Serialize() ([]byte, error) {
	return encMode.Marshal(s)
}

// NewSpellFromBytes decodes a bare spell, as stored by provenance stores.
func NewSpellFromBytes(raw []byte) (*Spell, error) {
	s := &Spell{}
	if err := decMode.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("invalid spell: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid spell: %w", err)
	}
	return s, nil
}
