package btctx_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/CharmsDev/charms-go/pkg/charms/btctx"
)

const testTxid = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"

func validTxData() btctx.TxData {
	sequence := uint32(0xfffffffd)
	return btctx.TxData{
		Version:  2,
		LockTime: 800_000,
		Vin: []btctx.Vin{
			{
				Txid:     testTxid,
				Vout:     1,
				Witness:  []string{"aabb", "cc"},
				Sequence: &sequence,
			},
		},
		Vout: []btctx.Vout{
			{
				Value:        0.0001,
				ScriptPubKey: btctx.ScriptPubKey{Hex: "51"},
			},
		},
	}
}

func TestNewTxFromTxData(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tx, err := btctx.NewTxFromTxData(validTxData())
		require.NoError(t, err)
		require.NotNil(t, tx)

		require.Equal(t, int32(2), tx.Version)
		require.Equal(t, uint32(800_000), tx.LockTime)
		require.Len(t, tx.TxIn, 1)
		require.Len(t, tx.TxOut, 1)

		in := tx.TxIn[0]
		require.Equal(t, testTxid, in.PreviousOutPoint.Hash.String())
		require.Equal(t, uint32(1), in.PreviousOutPoint.Index)
		require.Equal(t, uint32(0xfffffffd), in.Sequence)
		require.Equal(t, wire.TxWitness{{0xaa, 0xbb}, {0xcc}}, in.Witness)

		require.Equal(t, int64(10_000), tx.TxOut[0].Value)
		require.Equal(t, []byte{0x51}, tx.TxOut[0].PkScript)
	})

	t.Run("defaults", func(t *testing.T) {
		data := validTxData()
		data.Version = 0
		data.Vin[0].Sequence = nil

		tx, err := btctx.NewTxFromTxData(data)
		require.NoError(t, err)
		require.Equal(t, int32(2), tx.Version)
		require.Equal(t, uint32(wire.MaxTxInSequenceNum), tx.TxIn[0].Sequence)
	})

	t.Run("invalid", func(t *testing.T) {
		testCases := []struct {
			name        string
			mutate      func(*btctx.TxData)
			expectedErr string
		}{
			{
				"no inputs",
				func(d *btctx.TxData) { d.Vin = nil },
				"no inputs",
			},
			{
				"no outputs",
				func(d *btctx.TxData) { d.Vout = nil },
				"no outputs",
			},
			{
				"short txid",
				func(d *btctx.TxData) { d.Vin[0].Txid = "f4184f" },
				"invalid txid length",
			},
			{
				"non-hex txid",
				func(d *btctx.TxData) {
					d.Vin[0].Txid = string(bytes.Repeat([]byte{'z'}, 64))
				},
				"invalid txid",
			},
			{
				"bad witness item",
				func(d *btctx.TxData) { d.Vin[0].Witness = []string{"zz"} },
				"invalid witness item",
			},
			{
				"bad scriptSig",
				func(d *btctx.TxData) {
					d.Vin[0].ScriptSig = &btctx.ScriptSig{Hex: "zz"}
				},
				"invalid scriptSig",
			},
			{
				"negative value",
				func(d *btctx.TxData) { d.Vout[0].Value = -1 },
				"negative value",
			},
			{
				"missing scriptPubKey",
				func(d *btctx.TxData) { d.Vout[0].ScriptPubKey.Hex = "" },
				"missing scriptPubKey",
			},
			{
				"bad scriptPubKey",
				func(d *btctx.TxData) { d.Vout[0].ScriptPubKey.Hex = "zz" },
				"invalid scriptPubKey",
			},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				data := validTxData()
				tc.mutate(&data)
				_, err := btctx.NewTxFromTxData(data)
				require.ErrorContains(t, err, tc.expectedErr)
			})
		}
	})
}

func TestNewTxFromHex(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		txid, err := chainhash.NewHashFromStr(testTxid)
		require.NoError(t, err)

		tx := wire.NewMsgTx(2)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(txid, 0), nil, wire.TxWitness{
			{0x01, 0x02},
		}))
		tx.AddTxOut(wire.NewTxOut(5000, []byte{0x51}))

		var buf bytes.Buffer
		require.NoError(t, tx.Serialize(&buf))

		decoded, err := btctx.NewTxFromHex(hex.EncodeToString(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, tx.TxHash(), decoded.TxHash())
		require.Equal(t, tx.WitnessHash(), decoded.WitnessHash())
	})

	t.Run("invalid", func(t *testing.T) {
		t.Run("not hex", func(t *testing.T) {
			_, err := btctx.NewTxFromHex("not a tx")
			require.Error(t, err)
		})

		t.Run("truncated", func(t *testing.T) {
			_, err := btctx.NewTxFromHex("020000000001")
			require.Error(t, err)
		})

		t.Run("trailing bytes", func(t *testing.T) {
			txid, err := chainhash.NewHashFromStr(testTxid)
			require.NoError(t, err)

			tx := wire.NewMsgTx(2)
			tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(txid, 0), []byte{0x51}, nil))
			tx.AddTxOut(wire.NewTxOut(5000, []byte{0x51}))

			var buf bytes.Buffer
			require.NoError(t, tx.Serialize(&buf))
			buf.WriteByte(0x00)

			_, err = btctx.NewTxFromHex(hex.EncodeToString(buf.Bytes()))
			require.ErrorContains(t, err, "trailing bytes")
		})
	})
}
