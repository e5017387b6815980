// Package charms extracts spells from Bitcoin transactions and verifies
// them: envelope parsing, payload decoding, commitment checks, provenance
// chaining and proof verification behind one entrypoint.
package charms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"

	"github.com/CharmsDev/charms-go/pkg/charms/btctx"
	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
	"github.com/CharmsDev/charms-go/pkg/charms/proof"
	"github.com/CharmsDev/charms-go/pkg/charms/provenance"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

// Verifier runs the full verification pipeline. The zero-option verifier
// works but can only verify spells whose inputs carry no prior asset state,
// provenance has to come from prev spells or a store.
type Verifier struct {
	prevSpells map[chainhash.Hash]*spell.Spell
	store      provenance.Store
}

type Option func(*Verifier)

// WithPrevSpells supplies already-verified spells of the transactions whose
// outputs the verified transaction spends.
func WithPrevSpells(prev map[chainhash.Hash]*spell.Spell) Option {
	return func(v *Verifier) {
		v.prevSpells = prev
	}
}

// WithStore supplies a provenance store consulted for prev spells not
// passed explicitly.
func WithStore(store provenance.Store) Option {
	return func(v *Verifier) {
		v.store = store
	}
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ExtractAndVerifySpell scans tx for a spell envelope and verifies the
// spell it carries. In strict mode any anomaly rejects; otherwise
// tolerable anomalies (unknown payload fields, deprecated versions, mock
// proofs) verify with warnings. The outcome is always a structured result,
// never a panic or a raw error.
func (v *Verifier) ExtractAndVerifySpell(
	ctx context.Context, tx *wire.MsgTx, strict bool,
) (result VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = rejected(cerrors.DecodeError.New(
				"panic during spell verification: %v", r,
			))
		}
		if !result.Verified {
			log.WithField("reason", result.Reason).
				WithField("detail", result.Detail).
				Debug("spell verification failed")
		}
	}()

	if tx == nil {
		return rejected(cerrors.MalformedTransaction.New("missing tx"))
	}

	raw, err := spell.ExtractPayload(tx)
	if err != nil {
		var notFound spell.SpellNotFoundError
		if errors.As(err, &notFound) {
			return rejected(cerrors.NoSpell.Wrap(err))
		}
		return rejected(cerrors.DecodeError.Wrap(err))
	}

	payload, err := spell.NewPayloadFromBytes(raw, strict)
	if err != nil {
		return rejected(cerrors.DecodeError.Wrap(err))
	}
	s := &payload.Spell

	var warnings []string
	if !strict && spell.HasUnknownFields(raw) {
		warnings = append(warnings, "spell payload carries unrecognized fields")
	}
	if s.Version < spell.CurrentVersion {
		if strict {
			return rejected(cerrors.DecodeError.New(
				"deprecated spell version %d", s.Version,
			))
		}
		warnings = append(warnings,
			fmt.Sprintf("deprecated spell version %d", s.Version))
	}

	if err := verifyCommitments(tx, s); err != nil {
		return rejected(err)
	}
	if err := v.verifyChaining(ctx, s); err != nil {
		return rejected(err)
	}
	if err := verifyProofs(payload, strict, &warnings); err != nil {
		return rejected(err)
	}

	return verified(s, warnings)
}

// verifyChaining checks that every input claiming asset state is backed by
// the spell of the transaction that created it, and that the claimed state
// matches what that spell assigned to the spent output.
func (v *Verifier) verifyChaining(ctx context.Context, s *spell.Spell) error {
	for i, in := range s.Ins {
		if len(in.Charms) == 0 {
			continue
		}
		prev, err := v.lookupPrevSpell(ctx, in.UtxoID.TxID)
		if err != nil {
			return err
		}
		if prev == nil {
			return cerrors.MissingProvenance.New(
				"input %d claims charms but the spell of tx %s is unknown",
				i, in.UtxoID.TxID.String(),
			)
		}
		if int(in.UtxoID.Index) >= len(prev.Outs) {
			return cerrors.UnresolvedReference.New(
				"input %d spends output %d of tx %s, its spell declares %d outputs",
				i, in.UtxoID.Index, in.UtxoID.TxID.String(), len(prev.Outs),
			)
		}
		if !charmsByApp(s, in.Charms).equal(
			charmsByApp(prev, prev.Outs[in.UtxoID.Index].Charms),
		) {
			return cerrors.CommitmentMismatch.New(
				"input %d claims charms that disagree with the spell of tx %s",
				i, in.UtxoID.TxID.String(),
			)
		}
	}
	return nil
}

func (v *Verifier) lookupPrevSpell(
	ctx context.Context, txid chainhash.Hash,
) (*spell.Spell, error) {
	if prev, ok := v.prevSpells[txid]; ok {
		return prev, nil
	}
	if v.store == nil {
		return nil, nil
	}
	prev, err := v.store.Get(ctx, txid)
	if err != nil {
		if errors.Is(err, provenance.ErrNotFound) {
			return nil, nil
		}
		return nil, cerrors.MissingProvenance.Wrap(err)
	}
	return prev, nil
}

// appState is asset state keyed by app identity rather than by the
// spell-local app key, so state can be compared across two spells that
// name the same app differently.
type appState map[spell.App]string

func charmsByApp(s *spell.Spell, charms spell.Charms) appState {
	state := make(appState, len(charms))
	for key, data := range charms {
		state[s.Apps[key]] = string(data)
	}
	return state
}

func (a appState) equal(b appState) bool {
	if len(a) != len(b) {
		return false
	}
	for app, data := range a {
		if other, ok := b[app]; !ok || other != data {
			return false
		}
	}
	return true
}

// verifyProofs checks every attached proof and requires every declared app
// to be covered by at least one.
func verifyProofs(p *spell.Payload, strict bool, warnings *[]string) error {
	s := &p.Spell
	if len(s.Apps) == 0 && len(p.Proofs) == 0 {
		return nil
	}

	statement, err := proof.Statement(s)
	if err != nil {
		return cerrors.DecodeError.Wrap(err)
	}

	covered := make(map[string]bool, len(s.Apps))
	for i, prf := range p.Proofs {
		app, ok := s.Apps[prf.App]
		if !ok {
			return cerrors.ProofVerificationFailed.New(
				"proof %d covers undeclared app %q", i, prf.App,
			)
		}
		if err := proof.Verify(prf, statement, app, !strict); err != nil {
			return err
		}
		if prf.Kind == proof.KindMock {
			*warnings = append(*warnings,
				fmt.Sprintf("app %q is covered by a mock proof", prf.App))
		}
		covered[prf.App] = true
	}

	// Sorted so the rejection detail is stable across runs.
	keys := make([]string, 0, len(s.Apps))
	for key := range s.Apps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !covered[key] {
			return cerrors.MissingProof.New("app %q has no proof", key)
		}
	}
	return nil
}

// ExtractAndVerifySpell runs the pipeline without provenance sources, see
// Verifier for the configurable form.
func ExtractAndVerifySpell(tx *wire.MsgTx, strict bool) VerificationResult {
	return NewVerifier().ExtractAndVerifySpell(context.Background(), tx, strict)
}

// ExtractAndVerifySpellJSON is the JSON-in, JSON-out form: txJSON is a
// decoded transaction as produced by bitcoind, the result is the marshaled
// VerificationResult.
func (v *Verifier) ExtractAndVerifySpellJSON(
	ctx context.Context, txJSON []byte, strict bool,
) []byte {
	var data btctx.TxData
	result := func() VerificationResult {
		if err := json.Unmarshal(txJSON, &data); err != nil {
			return rejected(cerrors.MalformedTransaction.Wrap(err))
		}
		tx, err := btctx.NewTxFromTxData(data)
		if err != nil {
			return rejected(cerrors.MalformedTransaction.Wrap(err))
		}
		return v.ExtractAndVerifySpell(ctx, tx, strict)
	}()
	buf, err := json.Marshal(result)
	if err != nil {
		// Spells already round-tripped through the codec, this cannot
		// happen with well-formed results.
		buf, _ = json.Marshal(rejected(cerrors.DecodeError.Wrap(err)))
	}
	return buf
}

// ShowSpell decodes the spell carried by tx without verifying it.
func ShowSpell(tx *wire.MsgTx) (*spell.Spell, error) {
	if tx == nil {
		return nil, cerrors.MalformedTransaction.New("missing tx")
	}
	raw, err := spell.ExtractPayload(tx)
	if err != nil {
		var notFound spell.SpellNotFoundError
		if errors.As(err, &notFound) {
			return nil, cerrors.NoSpell.Wrap(err)
		}
		return nil, cerrors.DecodeError.Wrap(err)
	}
	payload, err := spell.NewPayloadFromBytes(raw, false)
	if err != nil {
		return nil, cerrors.DecodeError.Wrap(err)
	}
	return &payload.Spell, nil
}
