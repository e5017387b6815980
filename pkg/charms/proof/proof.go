// Package proof derives the statement a spell proves and verifies the
// proofs attached to it.
package proof

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

// SpellVK commits to the verifier program all spells are checked against.
// It is part of the proven statement, so proofs produced for a different
// verifier version do not validate.
const SpellVK = "0x0025109b59207637b23ef8f55f66a0793281cd04f158afdd7a28202384c48870"

// Proof kinds.
const (
	// KindMock is a plain digest over the statement. It carries no
	// cryptographic weight and is only admitted outside strict mode.
	KindMock uint8 = iota
	// KindSchnorr is a BIP-340 signature over the statement by the key
	// the app's VK field commits to.
	KindSchnorr
	// KindGroth16 is a Groth16 proof over BN254 whose verifying key
	// hashes to the app's VK field.
	KindGroth16
)

var mockDomain = []byte("charms/mock-proof/v0")

// Statement derives the 32-byte statement proven by a spell's proofs: the
// sha256 of the deterministic encoding of the verifier commitment paired
// with the spell.
func Statement(s *spell.Spell) ([32]byte, error) {
	buf, err := spell.MarshalDeterministic([]any{SpellVK, s})
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode statement: %w", err)
	}
	return sha256.Sum256(buf), nil
}

// MockProofData computes the digest a well-formed mock proof must carry for
// a given statement.
func MockProofData(statement [32]byte) []byte {
	h := sha256.New()
	h.Write(mockDomain)
	h.Write(statement[:])
	return h.Sum(nil)
}

// Verify checks a single proof against the statement and the app it covers.
// allowMock admits mock proofs; verifiers running in strict mode must not
// set it.
func Verify(p spell.Proof, statement [32]byte, app spell.App, allowMock bool) error {
	switch p.Kind {
	case KindMock:
		if !allowMock {
			return cerrors.ProofVerificationFailed.New(
				"mock proof for app %q not admitted in strict mode", p.App,
			)
		}
		if !bytes.Equal(p.Data, MockProofData(statement)) {
			return cerrors.ProofVerificationFailed.New(
				"mock proof for app %q does not match statement", p.App,
			)
		}
		return nil
	case KindSchnorr:
		pubKey, err := schnorr.ParsePubKey(app.VK[:])
		if err != nil {
			return cerrors.ProofVerificationFailed.New(
				"app %q vk is not a valid schnorr public key: %s", p.App, err,
			)
		}
		sig, err := schnorr.ParseSignature(p.Data)
		if err != nil {
			return cerrors.ProofVerificationFailed.New(
				"invalid schnorr proof for app %q: %s", p.App, err,
			)
		}
		if !sig.Verify(statement[:], pubKey) {
			return cerrors.ProofVerificationFailed.New(
				"schnorr proof for app %q does not verify", p.App,
			)
		}
		return nil
	case KindGroth16:
		return verifyGroth16(p, statement, app)
	default:
		return cerrors.UnsupportedProofKind.New("unknown proof kind %d", p.Kind)
	}
}
