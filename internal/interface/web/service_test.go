package web_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/CharmsDev/charms-go/internal/interface/web"
	"github.com/CharmsDev/charms-go/pkg/charms"
	"github.com/CharmsDev/charms-go/pkg/charms/proof"
	"github.com/CharmsDev/charms-go/pkg/charms/provenance"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

const appKey = "$00"

type harness struct {
	server  *httptest.Server
	privKey *btcec.PrivateKey
	app     spell.App
	state   spell.RawData
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	vk, err := spell.NewB32FromBytes(schnorr.SerializePubKey(privKey.PubKey()))
	require.NoError(t, err)
	state, err := spell.MarshalDeterministic(uint64(5))
	require.NoError(t, err)

	svc := web.NewService(":0", provenance.NewInMemoryStore())
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)

	return &harness{
		server:  server,
		privKey: privKey,
		app:     spell.App{Tag: spell.TagToken, Identity: spell.B32{0x01}, VK: vk},
		state:   state,
	}
}

// spellTx builds a transaction spending prevOut and carrying a signed spell
// whose input claims inCharms and whose single output holds h.state.
func (h *harness) spellTx(
	t *testing.T, prevOut wire.OutPoint, inCharms spell.Charms,
) *wire.MsgTx {
	t.Helper()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&prevOut, nil, nil))
	tx.AddTxOut(wire.NewTxOut(10_000, []byte{txscript.OP_TRUE}))

	s := spell.Spell{
		Version: spell.CurrentVersion,
		Apps:    map[string]spell.App{appKey: h.app},
		Ins: []spell.Input{
			{
				UtxoID: spell.UtxoID{TxID: prevOut.Hash, Index: prevOut.Index},
				Charms: inCharms,
			},
		},
		Outs: []spell.Output{{Charms: spell.Charms{appKey: h.state}}},
	}
	statement, err := proof.Statement(&s)
	require.NoError(t, err)
	sig, err := schnorr.Sign(h.privKey, statement[:])
	require.NoError(t, err)

	payload := &spell.Payload{
		Spell:  s,
		Proofs: []spell.Proof{{Kind: proof.KindSchnorr, App: appKey, Data: sig.Serialize()}},
	}
	raw, err := payload.Serialize()
	require.NoError(t, err)
	script, err := spell.DataScript(bytes.Repeat([]byte{0x02}, 32), raw)
	require.NoError(t, err)
	tx.TxIn[0].Witness = wire.TxWitness{
		bytes.Repeat([]byte{0xaa}, 64),
		script,
		append([]byte{0xc0}, bytes.Repeat([]byte{0x02}, 32)...),
	}
	return tx
}

func txHex(t *testing.T, tx *wire.MsgTx) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func (h *harness) post(
	t *testing.T, path string, body any,
) (int, []byte) {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(
		h.server.URL+path, "application/json", bytes.NewReader(buf),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, got
}

func TestService(t *testing.T) {
	h := newHarness(t)

	t.Run("ready", func(t *testing.T) {
		resp, err := http.Get(h.server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("verify", func(t *testing.T) {
		genesisOut := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 0}
		tx1 := h.spellTx(t, genesisOut, nil)

		t.Run("valid spell", func(t *testing.T) {
			status, body := h.post(t, "/spells/verify", map[string]any{
				"tx_hex": txHex(t, tx1),
				"strict": true,
			})
			require.Equal(t, http.StatusOK, status, string(body))

			var result charms.VerificationResult
			require.NoError(t, json.Unmarshal(body, &result))
			require.True(t, result.Verified, result.Detail)
			require.NotNil(t, result.Spell)
		})

		t.Run("chained spell backed by recorded provenance", func(t *testing.T) {
			// tx1's spell was recorded by the previous verification, so
			// spending its output with matching charms must verify.
			txid1, err := chainhash.NewHashFromStr(tx1.TxID())
			require.NoError(t, err)
			tx2 := h.spellTx(t,
				wire.OutPoint{Hash: *txid1, Index: 0},
				spell.Charms{appKey: h.state},
			)

			status, body := h.post(t, "/spells/verify", map[string]any{
				"tx_hex": txHex(t, tx2),
				"strict": true,
			})
			require.Equal(t, http.StatusOK, status, string(body))
		})

		t.Run("chained spell with prev txs", func(t *testing.T) {
			// Fresh service: provenance comes only from the request.
			fresh := newHarness(t)
			fresh.privKey = h.privKey
			fresh.app = h.app
			fresh.state = h.state

			first := fresh.spellTx(t, genesisOut, nil)
			txidFirst, err := chainhash.NewHashFromStr(first.TxID())
			require.NoError(t, err)
			second := fresh.spellTx(t,
				wire.OutPoint{Hash: *txidFirst, Index: 0},
				spell.Charms{appKey: fresh.state},
			)

			status, body := fresh.post(t, "/spells/verify", map[string]any{
				"tx_hex":   txHex(t, second),
				"strict":   true,
				"prev_txs": []string{txHex(t, first)},
			})
			require.Equal(t, http.StatusOK, status, string(body))
		})

		t.Run("missing provenance", func(t *testing.T) {
			fresh := newHarness(t)
			fresh.privKey = h.privKey
			fresh.app = h.app
			fresh.state = h.state

			orphan := fresh.spellTx(t,
				wire.OutPoint{Hash: chainhash.Hash{0x09}, Index: 0},
				spell.Charms{appKey: fresh.state},
			)

			status, body := fresh.post(t, "/spells/verify", map[string]any{
				"tx_hex": txHex(t, orphan),
				"strict": true,
			})
			require.Equal(t, http.StatusFailedDependency, status)

			var result charms.VerificationResult
			require.NoError(t, json.Unmarshal(body, &result))
			require.Equal(t, "MissingProvenance", result.Reason)
		})

		t.Run("no spell", func(t *testing.T) {
			tx := wire.NewMsgTx(2)
			tx.AddTxIn(wire.NewTxIn(
				wire.NewOutPoint(&chainhash.Hash{0x02}, 0), []byte{0x51}, nil,
			))
			tx.AddTxOut(wire.NewTxOut(1000, []byte{txscript.OP_TRUE}))

			status, body := h.post(t, "/spells/verify", map[string]any{
				"tx_hex": txHex(t, tx),
			})
			require.Equal(t, http.StatusNotFound, status)

			var result charms.VerificationResult
			require.NoError(t, json.Unmarshal(body, &result))
			require.Equal(t, "NoSpell", result.Reason)
		})

		t.Run("malformed tx", func(t *testing.T) {
			status, _ := h.post(t, "/spells/verify", map[string]any{
				"tx_hex": "not a tx",
			})
			require.Equal(t, http.StatusBadRequest, status)
		})

		t.Run("missing tx", func(t *testing.T) {
			status, _ := h.post(t, "/spells/verify", map[string]any{})
			require.Equal(t, http.StatusBadRequest, status)
		})
	})

	t.Run("show", func(t *testing.T) {
		tx := h.spellTx(t, wire.OutPoint{Hash: chainhash.Hash{0x03}, Index: 0}, nil)

		status, body := h.post(t, "/spells/show", map[string]any{
			"tx_hex": txHex(t, tx),
		})
		require.Equal(t, http.StatusOK, status, string(body))

		var result struct {
			Spell *spell.Spell `json:"spell"`
		}
		require.NoError(t, json.Unmarshal(body, &result))
		require.NotNil(t, result.Spell)
		require.Equal(t, spell.CurrentVersion, result.Spell.Version)
	})
}
