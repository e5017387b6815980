package web

import (
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/CharmsDev/charms-go/pkg/charms"
	"github.com/CharmsDev/charms-go/pkg/charms/btctx"
	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

type txRequest struct {
	Tx    *btctx.TxData `json:"tx,omitempty"`
	TxHex string        `json:"tx_hex,omitempty"`
}

func (r txRequest) parse() (*wire.MsgTx, error) {
	switch {
	case r.Tx != nil:
		return btctx.NewTxFromTxData(*r.Tx)
	case r.TxHex != "":
		return btctx.NewTxFromHex(r.TxHex)
	default:
		return nil, fmt.Errorf("missing tx or tx_hex")
	}
}

type verifyRequest struct {
	txRequest
	Strict bool `json:"strict"`
	// PrevTxs are raw transactions whose outputs the verified transaction
	// spends. Their spells, if any, are verified first and used as
	// provenance.
	PrevTxs []string `json:"prev_txs,omitempty"`
}

// verifySpell verifies the spell of the posted transaction. The response is
// always the structured verification result; the status code follows the
// rejection reason, 200 on success.
func (s *Service) verifySpell(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	tx, err := req.parse()
	if err != nil {
		result := charms.VerificationResult{
			Reason: cerrors.MalformedTransaction.Name,
			Detail: err.Error(),
		}
		return c.JSON(cerrors.MalformedTransaction.HTTPStatus, result)
	}
	ctx := c.Request().Context()

	prevSpells, err := s.verifyPrevTxs(c, req)
	if err != nil {
		return badRequest(err)
	}

	verifier := charms.NewVerifier(
		charms.WithPrevSpells(prevSpells), charms.WithStore(s.store),
	)
	result := verifier.ExtractAndVerifySpell(ctx, tx, req.Strict)

	if result.Verified {
		txid, _ := chainhash.NewHashFromStr(tx.TxID())
		if err := s.store.Put(ctx, *txid, result.Spell); err != nil {
			log.WithError(err).Warn("failed to record verified spell")
		}
		return c.JSON(http.StatusOK, result)
	}
	return c.JSON(cerrors.StatusOf(result.Reason), result)
}

// verifyPrevTxs verifies the spells of the supplied prev transactions and
// records the valid ones. Prev txs without a spell are fine, they just
// contribute no provenance.
func (s *Service) verifyPrevTxs(
	c echo.Context, req verifyRequest,
) (map[chainhash.Hash]*spell.Spell, error) {
	ctx := c.Request().Context()
	prevSpells := make(map[chainhash.Hash]*spell.Spell, len(req.PrevTxs))
	for i, txHex := range req.PrevTxs {
		prevTx, err := btctx.NewTxFromHex(txHex)
		if err != nil {
			return nil, fmt.Errorf("invalid prev tx %d: %s", i, err)
		}
		verifier := charms.NewVerifier(
			charms.WithPrevSpells(prevSpells), charms.WithStore(s.store),
		)
		result := verifier.ExtractAndVerifySpell(ctx, prevTx, req.Strict)
		if !result.Verified {
			continue
		}
		txid, _ := chainhash.NewHashFromStr(prevTx.TxID())
		prevSpells[*txid] = result.Spell
		if err := s.store.Put(ctx, *txid, result.Spell); err != nil {
			log.WithError(err).Warn("failed to record prev spell")
		}
	}
	return prevSpells, nil
}

// showSpell decodes and returns the spell of the posted transaction
// without verifying it.
func (s *Service) showSpell(c echo.Context) error {
	var req txRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	tx, err := req.parse()
	if err != nil {
		return badRequest(err)
	}
	sp, err := charms.ShowSpell(tx)
	if err != nil {
		e := cerrors.From(err)
		return c.JSON(e.HTTPStatus(), map[string]string{
			"reason": e.Reason(),
			"detail": e.Detail(),
		})
	}
	return c.JSON(http.StatusOK, map[string]*spell.Spell{"spell": sp})
}
