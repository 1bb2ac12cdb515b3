// Package store defines the persistence contracts of the reconciliation
// engine and ships memory and JSON-file implementations.
package store

import (
	"context"
	"time"

	"supplyrecon/internal"
	"supplyrecon/internal/util"
)

// Synonyms maps lower-cased free-text names to confirmed catalog ids.
type Synonyms struct {
	Suppliers map[string]internal.ID `json:"suppliers"`
	Products  map[string]internal.ID `json:"products"`
}

func NewSynonyms() Synonyms {
	return Synonyms{Suppliers: map[string]internal.ID{}, Products: map[string]internal.ID{}}
}

func (s Synonyms) clone() Synonyms {
	out := NewSynonyms()
	for k, v := range s.Suppliers {
		out.Suppliers[k] = v
	}
	for k, v := range s.Products {
		out.Products[k] = v
	}
	return out
}

func (s *Synonyms) ensure() {
	if s.Suppliers == nil {
		s.Suppliers = map[string]internal.ID{}
	}
	if s.Products == nil {
		s.Products = map[string]internal.ID{}
	}
}

type SynonymKind string

const (
	SupplierSynonym SynonymKind = "supplier"
	ProductSynonym  SynonymKind = "product"
)

// SynonymEntry is one human-confirmed mapping waiting to be written.
type SynonymEntry struct {
	Kind SynonymKind `json:"kind"`
	Name string      `json:"name"`
	ID   internal.ID `json:"id"`
}

// Key is the lookup form of a free-text name.
func Key(name string) string { return util.Fold(name) }

type SynonymStore interface {
	Snapshot(ctx context.Context) (Synonyms, error)
	// Put writes all entries; the call returns once they are durable.
	Put(ctx context.Context, entries ...SynonymEntry) error
}

type Ledger interface {
	Contains(ctx context.Context, fingerprint string) (bool, error)
	// Append returns once the fingerprint is durable.
	Append(ctx context.Context, fingerprint string) error
}

// SessionStore keeps one opaque session blob per conversation key. A ttl of
// zero means no expiry at the storage level.
type SessionStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func apply(s *Synonyms, entries []SynonymEntry) {
	s.ensure()
	for _, e := range entries {
		key := Key(e.Name)
		if key == "" || e.ID.IsZero() {
			continue
		}
		switch e.Kind {
		case SupplierSynonym:
			s.Suppliers[key] = e.ID
		case ProductSynonym:
			s.Products[key] = e.ID
		}
	}
}
