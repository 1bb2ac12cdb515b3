package connectors

import (
	"context"
	"fmt"

	"supplyrecon/internal/logx"
)

type FetchService struct {
	connector MailConnector
	store     *MailStore
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db EmailStore, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStore(db, rawMailDir),
	}
}

// FetchAndStore pulls up to max messages; Stored counts the new ones only.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", label, err)
	}

	stored := 0
	for _, msg := range messages {
		row, isNew, err := s.store.Store(msg)
		if err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, err
		}
		if isNew {
			stored++
			logx.Debug().Int("email", row.ID).Str("subject", row.Subject).Msg("email stored")
		}
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
