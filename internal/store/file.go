package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
)

// FileSynonyms persists the synonym map as {"suppliers":{},"products":{}}.
type FileSynonyms struct {
	path string
	mu   sync.Mutex
	data Synonyms
}

// OpenFileSynonyms never fails on a missing or unreadable file; it starts
// empty and logs a warning instead.
func OpenFileSynonyms(path string) *FileSynonyms {
	fs := &FileSynonyms{path: path, data: NewSynonyms()}
	var loaded Synonyms
	if readJSON(path, &loaded) {
		loaded.ensure()
		fs.data = loaded
	}
	return fs
}

func (f *FileSynonyms) Snapshot(ctx context.Context) (Synonyms, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.clone(), nil
}

func (f *FileSynonyms) Put(ctx context.Context, entries ...SynonymEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.data.clone()
	apply(&next, entries)
	if err := writeJSONAtomic(f.path, next); err != nil {
		return err
	}
	f.data = next
	return nil
}

type processedFile struct {
	Keys []string `json:"keys"`
}

// FileLedger persists processed fingerprints as {"keys":[...]}.
type FileLedger struct {
	path string
	mu   sync.Mutex
	keys map[string]struct{}
}

func OpenFileLedger(path string) *FileLedger {
	l := &FileLedger{path: path, keys: map[string]struct{}{}}
	var loaded processedFile
	if readJSON(path, &loaded) {
		for _, k := range loaded.Keys {
			l.keys[k] = struct{}{}
		}
	}
	return l
}

func (l *FileLedger) Contains(ctx context.Context, fingerprint string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[fingerprint]
	return ok, nil
}

func (l *FileLedger) Append(ctx context.Context, fingerprint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[fingerprint]; ok {
		return nil
	}
	keys := make([]string, 0, len(l.keys)+1)
	for k := range l.keys {
		keys = append(keys, k)
	}
	keys = append(keys, fingerprint)
	sort.Strings(keys)
	if err := writeJSONAtomic(l.path, processedFile{Keys: keys}); err != nil {
		return err
	}
	l.keys[fingerprint] = struct{}{}
	return nil
}

func readJSON(path string, v any) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logx.Warn().Err(err).Str("path", path).Msg("store file unreadable, starting empty")
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logx.Warn().Err(err).Str("path", path).Msg("store file corrupt, starting empty")
		return false
	}
	return true
}

// writeJSONAtomic writes to a temp file in the same directory, syncs it and
// renames it over the target.
func writeJSONAtomic(path string, v any) error {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "encode "+filepath.Base(path))
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errx.Wrap(err, errx.KindStorage, "create store dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return errx.Wrap(err, errx.KindStorage, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errx.Wrap(err, errx.KindStorage, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errx.Wrap(err, errx.KindStorage, "close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errx.Wrap(err, errx.KindStorage, "replace "+filepath.Base(path))
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
