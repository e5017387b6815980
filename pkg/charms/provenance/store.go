// Package provenance persists verified spells keyed by txid, so that later
// transactions spending their outputs can prove where their asset state
// came from.
package provenance

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

// ErrNotFound is returned by Get when no spell is recorded for the txid.
var ErrNotFound = errors.New("spell not found")

type Store interface {
	// Get returns the spell recorded for the given txid, or ErrNotFound.
	Get(ctx context.Context, txid chainhash.Hash) (*spell.Spell, error)
	// Put records a verified spell for the given txid. Re-recording the
	// same txid overwrites, spells are immutable once verified anyway.
	Put(ctx context.Context, txid chainhash.Hash, s *spell.Spell) error
	Close() error
}

type inMemoryStore struct {
	lock   *sync.RWMutex
	spells map[chainhash.Hash]*spell.Spell
}

// NewInMemoryStore returns a Store holding spells in process memory only.
func NewInMemoryStore() Store {
	return &inMemoryStore{
		lock:   &sync.RWMutex{},
		spells: make(map[chainhash.Hash]*spell.Spell),
	}
}

func (s *inMemoryStore) Get(
	_ context.Context, txid chainhash.Hash,
) (*spell.Spell, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sp, ok := s.spells[txid]
	if !ok {
		return nil, ErrNotFound
	}
	return sp, nil
}

func (s *inMemoryStore) Put(
	_ context.Context, txid chainhash.Hash, sp *spell.Spell,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.spells[txid] = sp
	return nil
}

func (s *inMemoryStore) Close() error {
	return nil
}
