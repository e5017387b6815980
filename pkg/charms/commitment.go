package charms

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/wire"

	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

// InputDigest hashes the stable part of a transaction input: outpoint,
// scriptSig and sequence. Witness data is excluded, the spell envelope
// itself lives there and a commitment covering it could never be satisfied.
func InputDigest(in *wire.TxIn) spell.B32 {
	var buf bytes.Buffer
	buf.Write(in.PreviousOutPoint.Hash[:])
	_ = binary.Write(&buf, binary.LittleEndian, in.PreviousOutPoint.Index)
	_ = wire.WriteVarBytes(&buf, 0, in.SignatureScript)
	_ = binary.Write(&buf, binary.LittleEndian, in.Sequence)
	return spell.B32(sha256.Sum256(buf.Bytes()))
}

// OutputDigest hashes a transaction output: value and pkScript.
func OutputDigest(out *wire.TxOut) spell.B32 {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, out.Value)
	_ = wire.WriteVarBytes(&buf, 0, out.PkScript)
	return spell.B32(sha256.Sum256(buf.Bytes()))
}

// verifyCommitments checks that the spell actually describes the carrying
// transaction: its inputs line up with the tx inputs, its outputs fit, and
// every declared digest matches the referenced input or output.
func verifyCommitments(tx *wire.MsgTx, s *spell.Spell) error {
	if len(s.Ins) > len(tx.TxIn) {
		return cerrors.UnresolvedReference.New(
			"spell declares %d inputs, tx has %d", len(s.Ins), len(tx.TxIn),
		)
	}
	for i, in := range s.Ins {
		prevOut := tx.TxIn[i].PreviousOutPoint
		if in.UtxoID.TxID != prevOut.Hash || in.UtxoID.Index != prevOut.Index {
			return cerrors.UnresolvedReference.New(
				"spell input %d spends %s, tx input spends %s:%d",
				i, in.UtxoID, prevOut.Hash.String(), prevOut.Index,
			)
		}
	}
	if len(s.Outs) > len(tx.TxOut) {
		return cerrors.UnresolvedReference.New(
			"spell declares %d outputs, tx has %d", len(s.Outs), len(tx.TxOut),
		)
	}

	type ref struct {
		target spell.RefTarget
		index  uint32
	}
	declared := make(map[ref]spell.B32, len(s.Commitments))
	for _, c := range s.Commitments {
		key := ref{c.Target, c.Index}
		if prev, ok := declared[key]; ok && prev != c.Digest {
			return cerrors.CommitmentMismatch.New(
				"conflicting digests declared for %s %d", c.Target, c.Index,
			)
		}
		declared[key] = c.Digest

		var actual spell.B32
		switch c.Target {
		case spell.TargetInput:
			if int(c.Index) >= len(tx.TxIn) {
				return cerrors.UnresolvedReference.New(
					"spell references input %d, tx has %d inputs",
					c.Index, len(tx.TxIn),
				)
			}
			actual = InputDigest(tx.TxIn[c.Index])
		case spell.TargetOutput:
			if int(c.Index) >= len(tx.TxOut) {
				return cerrors.UnresolvedReference.New(
					"spell references output %d, tx has %d outputs",
					c.Index, len(tx.TxOut),
				)
			}
			actual = OutputDigest(tx.TxOut[c.Index])
		default:
			return cerrors.DecodeError.New(
				"unknown commitment target %d", uint8(c.Target),
			)
		}
		if actual != c.Digest {
			return cerrors.CommitmentMismatch.New(
				"digest mismatch for %s %d", c.Target, c.Index,
			)
		}
	}
	return nil
}
