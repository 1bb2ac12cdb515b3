// Package audit keeps the record of every supply created through the
// engine: a row in the imports table, an optional JSON copy on disk, and an
// xlsx rendering on demand.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"supplyrecon/internal"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
)

type Recorder interface {
	InsertImport(ctx context.Context, row internal.ImportRow) (int64, error)
}

type Sink struct {
	db  Recorder
	dir string
	now func() time.Time
}

// NewSink records to db when it is non-nil and writes invoice_<unix>.json
// files into dir when dir is non-empty.
func NewSink(db Recorder, dir string) *Sink {
	return &Sink{db: db, dir: dir, now: internal.Now}
}

type fileRecord struct {
	SupplyID     string                `json:"supply_id"`
	Fingerprint  string                `json:"fingerprint"`
	Conversation string                `json:"conversation"`
	CreatedAt    string                `json:"created_at"`
	Invoice      internal.DraftInvoice `json:"invoice"`
}

func (s *Sink) RecordImport(ctx context.Context, row internal.ImportRow) error {
	if s.db != nil {
		id, err := s.db.InsertImport(ctx, row)
		if err != nil {
			return err
		}
		row.ID = int(id)
	}
	if s.dir == "" {
		return nil
	}

	path, err := s.writeFile(row)
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "write audit file")
	}
	logx.Debug().Str("path", path).Str("supply", row.SupplyID).Msg("audit file written")
	return nil
}

func (s *Sink) writeFile(row internal.ImportRow) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	blob, err := json.MarshalIndent(fileRecord{
		SupplyID:     row.SupplyID,
		Fingerprint:  row.Fingerprint,
		Conversation: row.Conversation,
		CreatedAt:    row.CreatedAt,
		Invoice:      row.Invoice,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	now := s.now()
	path := filepath.Join(s.dir, fmt.Sprintf("invoice_%d.json", now.Unix()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		path = filepath.Join(s.dir, fmt.Sprintf("invoice_%d.json", now.UnixNano()))
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(blob); err != nil {
		return "", err
	}
	return path, f.Sync()
}
