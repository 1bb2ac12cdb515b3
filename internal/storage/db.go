package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"supplyrecon/internal"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/store"
)

type DB struct {
	conn *sql.DB
}

// Open opens or creates the database at path. A file that sqlite reports as
// corrupt or not a database is moved aside to <path>.corrupt-<unix> and a
// fresh database takes its place.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := open(path)
	if err == nil || !isCorrupt(err) {
		return db, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, internal.Now().Unix())
	if rerr := os.Rename(path, aside); rerr != nil {
		return nil, errx.Wrap(rerr, errx.KindStorage, "move corrupt database aside")
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	logx.Warn().Err(err).Str("path", path).Str("moved_to", aside).Msg("corrupt database replaced with an empty one")
	return open(path)
}

func open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps sqlite from returning SQLITE_BUSY under load.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA synchronous = FULL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func isCorrupt(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	}
	return false
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS synonyms (
  kind TEXT NOT NULL,
  name TEXT NOT NULL,
  catalogId TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(kind, name)
);

CREATE TABLE IF NOT EXISTS processed (
  fingerprint TEXT PRIMARY KEY,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
  conversation TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  expiresAt TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS imports (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplyId TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  conversation TEXT NOT NULL,
  supplierName TEXT NOT NULL,
  invoiceNumber TEXT,
  invoiceDate TEXT,
  invoiceJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_imports_supplyId ON imports(supplyId);
CREATE INDEX IF NOT EXISTS idx_imports_fingerprint ON imports(fingerprint);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// Snapshot implements store.SynonymStore.
func (d *DB) Snapshot(ctx context.Context) (store.Synonyms, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT kind, name, catalogId FROM synonyms`)
	if err != nil {
		return store.Synonyms{}, errx.Wrap(err, errx.KindStorage, "load synonyms")
	}
	defer rows.Close()

	out := store.NewSynonyms()
	for rows.Next() {
		var kind, name, id string
		if err := rows.Scan(&kind, &name, &id); err != nil {
			return store.Synonyms{}, errx.Wrap(err, errx.KindStorage, "scan synonym")
		}
		switch store.SynonymKind(kind) {
		case store.SupplierSynonym:
			out.Suppliers[name] = internal.ID(id)
		case store.ProductSynonym:
			out.Products[name] = internal.ID(id)
		}
	}
	return out, rows.Err()
}

func (d *DB) Put(ctx context.Context, entries ...store.SynonymEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "begin synonyms tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO synonyms (kind, name, catalogId) VALUES (?, ?, ?)
ON CONFLICT(kind, name) DO UPDATE SET catalogId = excluded.catalogId, updatedAt = CURRENT_TIMESTAMP
`)
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "prepare synonyms upsert")
	}
	defer stmt.Close()

	for _, e := range entries {
		key := store.Key(e.Name)
		if key == "" || e.ID.IsZero() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, string(e.Kind), key, e.ID.String()); err != nil {
			return errx.Wrap(err, errx.KindStorage, "write synonym")
		}
	}
	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, errx.KindStorage, "commit synonyms")
	}
	return nil
}

// Contains and Append implement store.Ledger.
func (d *DB) Contains(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := d.conn.QueryRowContext(ctx, `SELECT 1 FROM processed WHERE fingerprint = ?`, fingerprint).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errx.Wrap(err, errx.KindStorage, "check ledger")
	}
	return true, nil
}

func (d *DB) Append(ctx context.Context, fingerprint string) error {
	_, err := d.conn.ExecContext(ctx, `INSERT INTO processed (fingerprint) VALUES (?) ON CONFLICT(fingerprint) DO NOTHING`, fingerprint)
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "append ledger")
	}
	return nil
}

// Sessions is the sqlite-backed store.SessionStore.
type Sessions struct {
	db *DB
}

func (d *DB) Sessions() *Sessions {
	return &Sessions{db: d}
}

func (s *Sessions) Load(ctx context.Context, conversation string) ([]byte, bool, error) {
	var payload string
	var expiresAt sql.NullString
	err := s.db.conn.QueryRowContext(ctx, `SELECT payload, expiresAt FROM sessions WHERE conversation = ?`, conversation).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errx.Wrap(err, errx.KindStorage, "load session")
	}
	if expiresAt.Valid {
		if ts, perr := time.Parse(time.RFC3339Nano, expiresAt.String); perr == nil && internal.Now().After(ts) {
			_ = s.Delete(ctx, conversation)
			return nil, false, nil
		}
	}
	return []byte(payload), true, nil
}

func (s *Sessions) Save(ctx context.Context, conversation string, blob []byte, ttl time.Duration) error {
	var expiresAt *string
	if ttl > 0 {
		v := internal.Now().Add(ttl).Format(time.RFC3339Nano)
		expiresAt = &v
	}
	_, err := s.db.conn.ExecContext(ctx, `
INSERT INTO sessions (conversation, payload, expiresAt) VALUES (?, ?, ?)
ON CONFLICT(conversation) DO UPDATE SET payload = excluded.payload, expiresAt = excluded.expiresAt, updatedAt = CURRENT_TIMESTAMP
`, conversation, string(blob), expiresAt)
	if err != nil {
		return errx.Wrap(err, errx.KindStorage, "save session")
	}
	return nil
}

func (s *Sessions) Delete(ctx context.Context, conversation string) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE conversation = ?`, conversation); err != nil {
		return errx.Wrap(err, errx.KindStorage, "delete session")
	}
	return nil
}

// PurgeExpiredSessions drops sessions whose expiry has passed.
func (s *Sessions) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expiresAt IS NOT NULL AND expiresAt < ?`, internal.Now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, errx.Wrap(err, errx.KindStorage, "purge sessions")
	}
	return res.RowsAffected()
}

func (d *DB) InsertImport(ctx context.Context, row internal.ImportRow) (int64, error) {
	invoiceJSON, err := json.Marshal(row.Invoice)
	if err != nil {
		return 0, err
	}
	res, err := d.conn.ExecContext(ctx, `
INSERT INTO imports (supplyId, fingerprint, conversation, supplierName, invoiceNumber, invoiceDate, invoiceJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, row.SupplyID, row.Fingerprint, row.Conversation, row.SupplierName, row.InvoiceNumber, row.InvoiceDate, string(invoiceJSON))
	if err != nil {
		return 0, errx.Wrap(err, errx.KindStorage, "insert import")
	}
	return res.LastInsertId()
}

const importColumns = `id, supplyId, fingerprint, conversation, supplierName, invoiceNumber, invoiceDate, invoiceJson, createdAt`

func scanImport(scan func(...any) error) (internal.ImportRow, error) {
	var row internal.ImportRow
	var invoiceJSON string
	if err := scan(&row.ID, &row.SupplyID, &row.Fingerprint, &row.Conversation, &row.SupplierName,
		&row.InvoiceNumber, &row.InvoiceDate, &invoiceJSON, &row.CreatedAt); err != nil {
		return internal.ImportRow{}, err
	}
	if err := json.Unmarshal([]byte(invoiceJSON), &row.Invoice); err != nil {
		return internal.ImportRow{}, fmt.Errorf("decode import %d: %w", row.ID, err)
	}
	return row, nil
}

// GetImportBySupplyID returns the latest import for a supply id, or nil.
func (d *DB) GetImportBySupplyID(ctx context.Context, supplyID string) (*internal.ImportRow, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+importColumns+` FROM imports WHERE supplyId = ? ORDER BY id DESC LIMIT 1`, supplyID)
	out, err := scanImport(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DB) ListImports(ctx context.Context, limit int) ([]internal.ImportRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+importColumns+` FROM imports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ImportRow
	for rows.Next() {
		row, err := scanImport(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(scan func(...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

var (
	_ store.SynonymStore = (*DB)(nil)
	_ store.Ledger       = (*DB)(nil)
	_ store.SessionStore = (*Sessions)(nil)
)
