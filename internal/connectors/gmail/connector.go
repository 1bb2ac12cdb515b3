package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"supplyrecon/internal"
	"supplyrecon/internal/config"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").LabelIds(label).MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(ref.Id, msg.InternalDate, raw))
	}
	return out, nil
}

// toFetched reads the envelope headers straight from the raw message, so
// one API call per message is enough.
func toFetched(gmailID string, internalDateMs int64, raw []byte) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{Provider: "gmail", MessageID: gmailID, Raw: raw}

	received := time.Now().UTC()
	if internalDateMs > 0 {
		received = time.UnixMilli(internalDateMs).UTC()
	}

	if m, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		dec := new(mime.WordDecoder)
		out.Subject = decodeHeader(dec, m.Header.Get("Subject"))
		out.From = decodeHeader(dec, m.Header.Get("From"))
		if id := m.Header.Get("Message-ID"); id != "" {
			out.MessageID = id
		}
		if internalDateMs <= 0 {
			if t, err := m.Header.Date(); err == nil {
				received = t.UTC()
			}
		}
	}
	out.ReceivedAt = received.Format(time.RFC3339)
	return out
}

func decodeHeader(dec *mime.WordDecoder, v string) string {
	if s, err := dec.DecodeHeader(v); err == nil {
		return s
	}
	return v
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
