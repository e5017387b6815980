package spell

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// spellMarker tags the witness envelope carrying a spell payload. The
// envelope is the standard inscription shape:
//
//	OP_FALSE OP_IF "spell" <chunk> ... <chunk> OP_ENDIF
//
// appended to an executable tapscript. The OP_FALSE guard keeps the branch
// from ever executing, so the payload is consensus-inert.
var spellMarker = []byte("spell")

// SpellNotFoundError is returned when none of the transaction inputs carry
// a spell envelope.
type SpellNotFoundError struct {
	Txid string
}

func (e SpellNotFoundError) Error() string {
	return fmt.Sprintf("spell not found in tx %s", e.Txid)
}

// ExtractPayload scans the transaction witnesses for a spell envelope and
// returns the reassembled payload bytes. A present but malformed envelope is
// an error; a transaction without any envelope yields SpellNotFoundError.
func ExtractPayload(tx *wire.MsgTx) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("missing tx")
	}
	for i, in := range tx.TxIn {
		items := [][]byte(in.Witness)
		if isAnnexedWitness(items) {
			items = items[:len(items)-1]
		}
		// Taproot script path spends carry at least the witness script
		// and the control block.
		if len(items) < 2 {
			continue
		}
		script := items[len(items)-2]
		payload, found, err := parseEnvelope(script)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if found {
			return payload, nil
		}
	}
	// Spell producers normally commit the envelope in a witness, but an
	// output locking script can carry it too.
	for i, out := range tx.TxOut {
		payload, found, err := parseEnvelope(out.PkScript)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		if found {
			return payload, nil
		}
	}
	return nil, SpellNotFoundError{Txid: tx.TxID()}
}

// isAnnexedWitness reports whether the witness stack ends with a taproot
// annex, which must be ignored when locating the witness script.
func isAnnexedWitness(items [][]byte) bool {
	if len(items) < 2 {
		return false
	}
	last := items[len(items)-1]
	return len(last) > 0 && last[0] == txscript.TaprootAnnexTag
}

// parseEnvelope scans a tapscript for the marker sequence and collects the
// payload chunks up to OP_ENDIF. found is false when the script carries no
// envelope at all.
func parseEnvelope(script []byte) ([]byte, bool, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)

	// Locate OP_FALSE OP_IF <marker>.
	const (
		stateSeekFalse = iota
		stateSeekIf
		stateSeekMarker
		stateFound
	)
	state := stateSeekFalse
	for state != stateFound && tokenizer.Next() {
		op := tokenizer.Opcode()
		switch {
		case state == stateSeekIf && op == txscript.OP_IF:
			state = stateSeekMarker
			continue
		case state == stateSeekMarker:
			if bytes.Equal(tokenizer.Data(), spellMarker) {
				state = stateFound
				continue
			}
			state = stateSeekFalse
		case state == stateSeekIf:
			state = stateSeekFalse
		}
		// A token that broke the sequence may itself open an envelope.
		if state == stateSeekFalse && op == txscript.OP_0 {
			state = stateSeekIf
		}
	}
	if state != stateFound {
		// Unparseable scripts without the marker are not ours to judge.
		return nil, false, nil
	}

	var payload bytes.Buffer
	for tokenizer.Next() {
		if tokenizer.Data() != nil {
			payload.Write(tokenizer.Data())
			continue
		}
		// Script builders canonicalize 1-byte pushes of 0, 1..16 and 0x81
		// into small-integer opcodes; read those back as the literal byte.
		switch op := tokenizer.Opcode(); {
		case op == txscript.OP_ENDIF:
			if err := tokenizer.Err(); err != nil {
				return nil, false, fmt.Errorf("malformed spell envelope: %s", err)
			}
			if payload.Len() == 0 {
				return nil, false, fmt.Errorf("empty spell envelope")
			}
			return payload.Bytes(), true, nil
		case op == txscript.OP_0:
			payload.WriteByte(0x00)
		case op >= txscript.OP_1 && op <= txscript.OP_16:
			payload.WriteByte(op - txscript.OP_1 + 1)
		case op == txscript.OP_1NEGATE:
			payload.WriteByte(0x81)
		default:
			return nil, false, fmt.Errorf("unexpected opcode %d in spell envelope", op)
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, false, fmt.Errorf("malformed spell envelope: %s", err)
	}
	return nil, false, fmt.Errorf("unterminated spell envelope")
}

// DataScript builds the tapscript embedding a spell payload: a key-path
// guard followed by the marker envelope, with the payload split into
// pushes of at most the max script element size.
func DataScript(xOnlyPubKey, payload []byte) ([]byte, error) {
	if len(xOnlyPubKey) != 32 {
		return nil, fmt.Errorf(
			"invalid x-only public key length %d", len(xOnlyPubKey),
		)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	builder := txscript.NewScriptBuilder().
		AddData(xOnlyPubKey).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_0).
		AddOp(txscript.OP_IF).
		AddData(spellMarker)
	for len(payload) > 0 {
		n := len(payload)
		if n > txscript.MaxScriptElementSize {
			n = txscript.MaxScriptElementSize
		}
		builder.AddData(payload[:n])
		payload = payload[n:]
	}
	return builder.AddOp(txscript.OP_ENDIF).Script()
}
