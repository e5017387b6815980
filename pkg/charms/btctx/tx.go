// Package btctx builds wire transactions from the two external
// representations the verifier accepts: the JSON shape produced by
// bitcoind's decoderawtransaction, and raw serialized hex.
package btctx

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Caps on structurally acceptable transactions. Anything beyond these is
// rejected before any per-input work happens.
const (
	MaxInputs  = 10_000
	MaxOutputs = 10_000
)

// TxData mirrors the decoded-transaction JSON of bitcoind.
type TxData struct {
	Version  int32  `json:"version,omitempty"`
	LockTime uint32 `json:"locktime,omitempty"`
	Vin      []Vin  `json:"vin"`
	Vout     []Vout `json:"vout"`
}

type Vin struct {
	Txid      string     `json:"txid"`
	Vout      uint32     `json:"vout"`
	ScriptSig *ScriptSig `json:"scriptSig,omitempty"`
	Witness   []string   `json:"txinwitness,omitempty"`
	Sequence  *uint32    `json:"sequence,omitempty"`
}

type ScriptSig struct {
	Hex string `json:"hex"`
}

type Vout struct {
	Value        float64      `json:"value"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

type ScriptPubKey struct {
	Hex string `json:"hex"`
}

// NewTxFromTxData assembles a wire transaction from its decoded JSON form.
// Output values are BTC amounts and are converted to satoshis.
func NewTxFromTxData(data TxData) (*wire.MsgTx, error) {
	if len(data.Vin) == 0 {
		return nil, fmt.Errorf("transaction has no inputs")
	}
	if len(data.Vin) > MaxInputs {
		return nil, fmt.Errorf("too many inputs: %d", len(data.Vin))
	}
	if len(data.Vout) == 0 {
		return nil, fmt.Errorf("transaction has no outputs")
	}
	if len(data.Vout) > MaxOutputs {
		return nil, fmt.Errorf("too many outputs: %d", len(data.Vout))
	}

	version := data.Version
	if version == 0 {
		version = 2
	}
	tx := wire.NewMsgTx(version)
	tx.LockTime = data.LockTime

	for i, in := range data.Vin {
		if len(in.Txid) != chainhash.MaxHashStringSize {
			return nil, fmt.Errorf(
				"input %d: invalid txid length %d", i, len(in.Txid),
			)
		}
		txid, err := chainhash.NewHashFromStr(in.Txid)
		if err != nil {
			return nil, fmt.Errorf("input %d: invalid txid: %s", i, err)
		}

		var scriptSig []byte
		if in.ScriptSig != nil && in.ScriptSig.Hex != "" {
			if scriptSig, err = hex.DecodeString(in.ScriptSig.Hex); err != nil {
				return nil, fmt.Errorf("input %d: invalid scriptSig: %s", i, err)
			}
		}

		witness := make(wire.TxWitness, 0, len(in.Witness))
		for j, item := range in.Witness {
			buf, err := hex.DecodeString(item)
			if err != nil {
				return nil, fmt.Errorf(
					"input %d: invalid witness item %d: %s", i, j, err,
				)
			}
			witness = append(witness, buf)
		}

		sequence := uint32(wire.MaxTxInSequenceNum)
		if in.Sequence != nil {
			sequence = *in.Sequence
		}

		txIn := wire.NewTxIn(wire.NewOutPoint(txid, in.Vout), scriptSig, witness)
		txIn.Sequence = sequence
		tx.AddTxIn(txIn)
	}

	for i, out := range data.Vout {
		if out.Value < 0 {
			return nil, fmt.Errorf("output %d: negative value", i)
		}
		amount, err := btcutil.NewAmount(out.Value)
		if err != nil {
			return nil, fmt.Errorf("output %d: invalid value: %s", i, err)
		}
		if out.ScriptPubKey.Hex == "" {
			return nil, fmt.Errorf("output %d: missing scriptPubKey", i)
		}
		pkScript, err := hex.DecodeString(out.ScriptPubKey.Hex)
		if err != nil {
			return nil, fmt.Errorf("output %d: invalid scriptPubKey: %s", i, err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))
	}

	return tx, nil
}

// NewTxFromHex deserializes a raw transaction from its hex encoding.
// Trailing bytes after the transaction are rejected.
func NewTxFromHex(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %s", err)
	}
	r := bytes.NewReader(raw)
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(r); err != nil {
		return nil, fmt.Errorf("invalid tx: %s", err)
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("trailing bytes after transaction")
	}
	if len(tx.TxIn) > MaxInputs {
		return nil, fmt.Errorf("too many inputs: %d", len(tx.TxIn))
	}
	if len(tx.TxOut) > MaxOutputs {
		return nil, fmt.Errorf("too many outputs: %d", len(tx.TxOut))
	}
	return tx, nil
}
