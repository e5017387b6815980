package proof

import (
	"bytes"
	"crypto/sha256"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

// verifyGroth16 checks a BN254 Groth16 proof. The proof carries its own
// verifying key, bound to the app by the sha256 commitment in the app's VK
// field. The statement enters as two public inputs, one per 16-byte half,
// so it fits the BN254 scalar field.
func verifyGroth16(p spell.Proof, statement [32]byte, app spell.App) error {
	if len(p.VK) == 0 {
		return cerrors.ProofVerificationFailed.New(
			"groth16 proof for app %q carries no verifying key", p.App,
		)
	}
	if spell.B32(sha256.Sum256(p.VK)) != app.VK {
		return cerrors.ProofVerificationFailed.New(
			"groth16 verifying key does not match app %q commitment", p.App,
		)
	}

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(p.VK)); err != nil {
		return cerrors.ProofVerificationFailed.New(
			"invalid groth16 verifying key for app %q: %s", p.App, err,
		)
	}
	prf := groth16.NewProof(ecc.BN254)
	if _, err := prf.ReadFrom(bytes.NewReader(p.Data)); err != nil {
		return cerrors.ProofVerificationFailed.New(
			"invalid groth16 proof for app %q: %s", p.App, err,
		)
	}

	publicWitness, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return cerrors.ProofVerificationFailed.New(
			"failed to build public witness: %s", err,
		)
	}
	values := make(chan any, 2)
	values <- new(big.Int).SetBytes(statement[:16])
	values <- new(big.Int).SetBytes(statement[16:])
	close(values)
	if err := publicWitness.Fill(2, 0, values); err != nil {
		return cerrors.ProofVerificationFailed.New(
			"failed to build public witness: %s", err,
		)
	}

	if err := groth16.Verify(prf, vk, publicWitness); err != nil {
		return cerrors.ProofVerificationFailed.New(
			"groth16 proof for app %q does not verify: %s", p.App, err,
		)
	}
	return nil
}
