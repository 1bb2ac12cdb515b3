package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"supplyrecon/internal"
	"supplyrecon/internal/errx"
)

// MailStore writes each raw message once, named by its content hash.
type MailStore struct {
	db         EmailStore
	rawMailDir string
}

func NewMailStore(db EmailStore, rawMailDir string) *MailStore {
	return &MailStore{db: db, rawMailDir: rawMailDir}
}

// Store returns the email row and whether it was seen for the first time.
func (s *MailStore) Store(msg internal.FetchedMailMessage) (internal.EmailRow, bool, error) {
	existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
	if err != nil {
		return internal.EmailRow{}, false, errx.Wrap(err, errx.KindStorage, "look up email")
	}

	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.EmailRow{}, false, errx.Wrap(err, errx.KindStorage, "create raw mail dir")
	}
	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, false, errx.Wrap(err, errx.KindStorage, "write raw mail")
		}
	}

	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, StatusFetched)
	if err != nil {
		return internal.EmailRow{}, false, errx.Wrap(err, errx.KindStorage, "upsert email")
	}
	return row, existing == nil, nil
}
