// Package badgerdb provides a badger-backed provenance store. With an
// empty base directory the store runs fully in memory, which the tests and
// the inmemory db-type rely on.
package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/CharmsDev/charms-go/pkg/charms/provenance"
	"github.com/CharmsDev/charms-go/pkg/charms/spell"
)

const (
	spellStoreDir = "spells"
	maxRetries    = 5
)

// spellRecord is the stored form: the spell is kept as its deterministic
// encoding rather than as a badgerhold-encoded struct, so the stored bytes
// stay canonical.
type spellRecord struct {
	Txid      string `badgerhold:"key"`
	Payload   []byte
	CreatedAt int64
}

type spellRepository struct {
	store *badgerhold.Store
}

// NewSpellRepository opens a provenance store under baseDir, or in memory
// when baseDir is empty.
func NewSpellRepository(
	baseDir string, logger badger.Logger,
) (provenance.Store, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, spellStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open spell store: %s", err)
	}

	return &spellRepository{store}, nil
}

func (r *spellRepository) Get(
	_ context.Context, txid chainhash.Hash,
) (*spell.Spell, error) {
	var record spellRecord
	err := r.store.Get(txid.String(), &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, provenance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spell: %w", err)
	}
	return spell.NewSpellFromBytes(record.Payload)
}

func (r *spellRepository) Put(
	_ context.Context, txid chainhash.Hash, s *spell.Spell,
) error {
	payload, err := s.Serialize()
	if err != nil {
		return fmt.Errorf("failed to encode spell: %w", err)
	}
	record := spellRecord{
		Txid:      txid.String(),
		Payload:   payload,
		CreatedAt: time.Now().Unix(),
	}
	if err := r.store.Upsert(record.Txid, &record); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			attempts := 1
			for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
				time.Sleep(100 * time.Millisecond)
				err = r.store.Upsert(record.Txid, &record)
				attempts++
			}
		}
		return err
	}
	return nil
}

func (r *spellRepository) Close() error {
	return r.store.Close()
}

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}
