// Package spell implements the spell payload embedded in Bitcoin
// transactions: its in-memory types, the deterministic CBOR wire codec and
// the taproot witness envelope it travels in.
package spell

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CurrentVersion is the spell protocol version produced by current spell
// builders. Version 1 spells are still decodable but deprecated.
const CurrentVersion uint32 = 2

// App tags. An app describes the contract governing an asset; the tag
// selects the asset flavor.
const (
	TagToken = byte('t')
	TagNFT   = byte('n')
)

// B32 is a 32-byte value (digest or verification key commitment).
type B32 [32]byte

// NewB32FromBytes converts a byte slice into a B32, enforcing the length.
func NewB32FromBytes(buf []byte) (B32, error) {
	var b B32
	if len(buf) != len(b) {
		return b, fmt.Errorf("invalid length, got %d want %d", len(buf), len(b))
	}
	copy(b[:], buf)
	return b, nil
}

func (b B32) String() string {
	return hex.EncodeToString(b[:])
}

// MarshalBinary encodes the value as a raw 32-byte string for CBOR.
func (b B32) MarshalBinary() ([]byte, error) {
	buf := make([]byte, len(b))
	copy(buf, b[:])
	return buf, nil
}

func (b *B32) UnmarshalBinary(buf []byte) error {
	v, err := NewB32FromBytes(buf)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b B32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *B32) UnmarshalText(text []byte) error {
	buf, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	return b.UnmarshalBinary(buf)
}

// UtxoID identifies a transaction output by txid and output index.
type UtxoID struct {
	TxID  chainhash.Hash
	Index uint32
}

// NewUtxoIDFromString parses the "txid:index" form, with the txid in the
// usual display (byte-reversed) order.
func NewUtxoIDFromString(s string) (UtxoID, error) {
	txidStr, indexStr, ok := strings.Cut(s, ":")
	if !ok {
		return UtxoID{}, fmt.Errorf("invalid utxo id format, must be txid:index")
	}
	if len(txidStr) != chainhash.MaxHashStringSize {
		return UtxoID{}, fmt.Errorf("invalid txid length, got %d want %d",
			len(txidStr), chainhash.MaxHashStringSize)
	}
	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return UtxoID{}, fmt.Errorf("invalid txid: %w", err)
	}
	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return UtxoID{}, fmt.Errorf("invalid output index: %w", err)
	}
	return UtxoID{TxID: *txid, Index: uint32(index)}, nil
}

func (u UtxoID) String() string {
	return fmt.Sprintf("%s:%d", u.TxID.String(), u.Index)
}

// MarshalBinary encodes the utxo id as txid bytes followed by the
// little-endian output index.
func (u UtxoID) MarshalBinary() ([]byte, error) {
	buf := make([]byte, chainhash.HashSize+4)
	copy(buf, u.TxID[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], u.Index)
	return buf, nil
}

func (u *UtxoID) UnmarshalBinary(buf []byte) error {
	if len(buf) != chainhash.HashSize+4 {
		return fmt.Errorf("invalid utxo id length, got %d want %d",
			len(buf), chainhash.HashSize+4)
	}
	copy(u.TxID[:], buf[:chainhash.HashSize])
	u.Index = binary.LittleEndian.Uint32(buf[chainhash.HashSize:])
	return nil
}

func (u UtxoID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *UtxoID) UnmarshalText(text []byte) error {
	v, err := NewUtxoIDFromString(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// App identifies an asset contract: a flavor tag, the asset identity and a
// commitment to the verification key authorizing its state transitions.
type App struct {
	Tag      byte `cbor:"0,keyasint" json:"tag"`
	Identity B32  `cbor:"1,keyasint" json:"identity"`
	VK       B32  `cbor:"2,keyasint" json:"vk"`
}

func (a App) validate() error {
	switch a.Tag {
	case TagToken, TagNFT:
		return nil
	default:
		return fmt.Errorf("unknown app tag %q", a.Tag)
	}
}

// Charms maps an app key (local to the spell) to the asset state held by an
// input or output. The state is kept as raw CBOR, opaque to the verifier.
type Charms map[string]RawData

// Input is a spell input: the utxo it spends and the asset state that utxo
// holds according to the spell of the transaction that created it.
type Input struct {
	UtxoID UtxoID `cbor:"0,keyasint" json:"utxoId"`
	Charms Charms `cbor:"1,keyasint,omitempty" json:"charms,omitempty"`
}

// Output declares the asset state carried by the transaction output at the
// same position.
type Output struct {
	Charms Charms `cbor:"0,keyasint,omitempty" json:"charms,omitempty"`
}

// RefTarget selects whether a commitment binds to a transaction input or
// output.
type RefTarget uint8

const (
	TargetInput  RefTarget = 0
	TargetOutput RefTarget = 1
)

func (t RefTarget) String() string {
	switch t {
	case TargetInput:
		return "input"
	case TargetOutput:
		return "output"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Commitment binds the spell to the content of a concrete transaction input
// or output via a sha256 digest of that input/output.
type Commitment struct {
	Target RefTarget `cbor:"0,keyasint" json:"target"`
	Index  uint32    `cbor:"1,keyasint" json:"index"`
	Digest B32       `cbor:"2,keyasint" json:"digest"`
}

// Proof is the carrier of a verification object attached to a spell. Kind
// tags are interpreted by the proof package; unknown tags are rejected
// there, not here.
type Proof struct {
	Kind uint8  `cbor:"0,keyasint" json:"kind"`
	App  string `cbor:"1,keyasint,omitempty" json:"app,omitempty"`
	VK   []byte `cbor:"2,keyasint,omitempty" json:"vk,omitempty"`
	Data []byte `cbor:"3,keyasint" json:"data"`
}

// Spell is the structured payload embedded in a transaction, describing an
// asset state transition.
type Spell struct {
	Version     uint32         `cbor:"0,keyasint" json:"version"`
	Apps        map[string]App `cbor:"1,keyasint,omitempty" json:"apps,omitempty"`
	Ins         []Input        `cbor:"2,keyasint" json:"ins"`
	Outs        []Output       `cbor:"3,keyasint" json:"outs"`
	Commitments []Commitment   `cbor:"4,keyasint,omitempty" json:"commitments,omitempty"`
}

// validate checks the structural invariants of a decoded spell: supported
// version, valid apps, non-empty unique inputs, and charms referencing
// declared apps only.
func (s *Spell) validate() error {
	if s.Version == 0 || s.Version > CurrentVersion {
		return fmt.Errorf("unsupported spell version %d", s.Version)
	}
	for key, app := range s.Apps {
		if len(key) == 0 {
			return fmt.Errorf("empty app key")
		}
		if err := app.validate(); err != nil {
			return fmt.Errorf("invalid app %q: %w", key, err)
		}
	}
	if len(s.Ins) == 0 {
		return fmt.Errorf("spell must have inputs")
	}
	seen := make(map[UtxoID]struct{}, len(s.Ins))
	for i, in := range s.Ins {
		if _, ok := seen[in.UtxoID]; ok {
			return fmt.Errorf("duplicate input %s", in.UtxoID)
		}
		seen[in.UtxoID] = struct{}{}
		if err := s.validateCharms(in.Charms); err != nil {
			return fmt.Errorf("invalid input %d: %w", i, err)
		}
	}
	for i, out := range s.Outs {
		if err := s.validateCharms(out.Charms); err != nil {
			return fmt.Errorf("invalid output %d: %w", i, err)
		}
	}
	for _, c := range s.Commitments {
		if c.Target != TargetInput && c.Target != TargetOutput {
			return fmt.Errorf("unknown commitment target %d", uint8(c.Target))
		}
	}
	return nil
}

func (s *Spell) validateCharms(charms Charms) error {
	for key := range charms {
		if _, ok := s.Apps[key]; !ok {
			return fmt.Errorf("charms reference undeclared app %q", key)
		}
	}
	return nil
}
