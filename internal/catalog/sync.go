package catalog

import (
	"context"
	"time"
)

// LastRefreshKey is the metadata key holding the time of the last forced
// refresh, RFC 3339 in UTC.
const LastRefreshKey = "catalog.last_refresh"

type MetadataStore interface {
	SetMetadata(key, value string) error
}

// SyncService forces a directory refresh and records when it happened.
type SyncService struct {
	dir  *Directory
	meta MetadataStore
}

func NewSyncService(dir *Directory, meta MetadataStore) *SyncService {
	return &SyncService{dir: dir, meta: meta}
}

type SyncResult struct {
	Suppliers int
	Products  int
	Barcodes  int
	SKUs      int
}

func (s *SyncService) Refresh(ctx context.Context) (SyncResult, error) {
	s.dir.Invalidate()
	idx, err := s.dir.Index(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if s.meta != nil {
		_ = s.meta.SetMetadata(LastRefreshKey, time.Now().UTC().Format(time.RFC3339))
	}
	return SyncResult{
		Suppliers: len(idx.Suppliers),
		Products:  len(idx.Products),
		Barcodes:  len(idx.ByBarcode),
		SKUs:      len(idx.BySKU),
	}, nil
}
