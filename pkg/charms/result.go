package charms

import (
	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

// VerificationResult is the structured outcome of spell extraction and
// verification. It never surfaces as a Go error: rejection is a value.
type VerificationResult struct {
	Verified bool         `json:"verified"`
	Spell    *spell.Spell `json:"spell,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

func verified(s *spell.Spell, warnings []string) VerificationResult {
	return VerificationResult{Verified: true, Spell: s, Warnings: warnings}
}

func rejected(err error) VerificationResult {
	e := cerrors.From(err)
	return VerificationResult{
		Verified: false,
		Reason:   e.Reason(),
		Detail:   e.Detail(),
	}
}
