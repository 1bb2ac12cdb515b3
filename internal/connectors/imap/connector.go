package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"supplyrecon/internal"
	"supplyrecon/internal/config"
	"supplyrecon/internal/logx"
)

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if c.secure {
		return imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	}
	return imapclient.Dial(addr)
}

// FetchInbox reads up to max unseen messages from the mailbox, newest last.
// Messages are flagged \Seen only after the whole batch was read.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, err
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		fetched, err := toFetched(msg, section)
		if err != nil {
			readErr = err
			continue
		}
		if fetched.Raw != nil {
			out = append(out, fetched)
		}
	}
	if err := <-fetchDone; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}

	if c.markSeen && len(out) > 0 {
		flags := []interface{}{imap.SeenFlag}
		if err := client.Store(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			logx.Warn().Err(err).Msg("imap mark seen failed")
		}
	}
	return out, nil
}

func toFetched(msg *imap.Message, section *imap.BodySectionName) (internal.FetchedMailMessage, error) {
	out := internal.FetchedMailMessage{Provider: "imap"}
	body := msg.GetBody(section)
	if body == nil {
		return out, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return out, err
	}
	out.Raw = raw

	if msg.Envelope != nil {
		out.MessageID = msg.Envelope.MessageId
		out.Subject = msg.Envelope.Subject
		out.From = formatAddresses(msg.Envelope.From)
	}
	if out.MessageID == "" {
		out.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
	}

	received := time.Now().UTC()
	if !msg.InternalDate.IsZero() {
		received = msg.InternalDate.UTC()
	}
	out.ReceivedAt = received.Format(time.RFC3339)
	return out, nil
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
