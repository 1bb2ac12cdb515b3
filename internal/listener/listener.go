// Package listener polls a mailbox for supplier invoices and opens a
// resolution session for each one it can read.
package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"supplyrecon/internal/config"
	"supplyrecon/internal/connectors"
	gmailconnector "supplyrecon/internal/connectors/gmail"
	imapconnector "supplyrecon/internal/connectors/imap"
	"supplyrecon/internal/logx"
)

type Service struct {
	db        connectors.EmailStore
	cfg       config.Config
	processor *Processor
	connect   func(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error)
}

func NewService(db connectors.EmailStore, cfg config.Config, processor *Processor) *Service {
	return &Service{db: db, cfg: cfg, processor: processor, connect: NewConnector}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logx.Info().Str("provider", s.cfg.MailListenerProvider).Dur("interval", interval).Msg("mail listener started")

	for {
		if err := s.RunCycle(ctx); err != nil {
			logx.Error().Err(err).Msg("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			logx.Info().Msg("mail listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	conn, err := s.connect(ctx, s.cfg, provider)
	if err != nil {
		return err
	}

	fetch := connectors.NewFetchService(s.db, s.cfg.RawMailDir, conn)
	fetched, err := fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	res, err := s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch)
	if err != nil {
		return err
	}

	logx.Info().
		Str("provider", provider).
		Int("fetched", fetched.Fetched).
		Int("stored", fetched.Stored).
		Int("processed", res.Processed).
		Int("prompted", res.Prompted).
		Int("imported", res.Imported).
		Int("duplicates", res.Duplicates).
		Int("skipped", res.Skipped).
		Msg("listener cycle done")
	return nil
}

func NewConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
