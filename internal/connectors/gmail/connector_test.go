package gmail

import (
	"encoding/base64"
	"testing"
)

const sampleRaw = "From: =?UTF-8?B?0KLQntCSINCc0L7Qu9C+0YfQutC+?= <sales@molochko.example>\r\n" +
	"Subject: Invoice 77\r\n" +
	"Message-ID: <77@molochko.example>\r\n" +
	"Date: Wed, 01 May 2024 10:00:00 +0300\r\n" +
	"\r\n" +
	"body\r\n"

func TestToFetchedReadsHeaders(t *testing.T) {
	msg := toFetched("gm-1", 0, []byte(sampleRaw))
	if msg.MessageID != "<77@molochko.example>" {
		t.Fatalf("message id=%q", msg.MessageID)
	}
	if msg.Subject != "Invoice 77" {
		t.Fatalf("subject=%q", msg.Subject)
	}
	if msg.From != "ТОВ Молочко <sales@molochko.example>" {
		t.Fatalf("from=%q", msg.From)
	}
	if msg.ReceivedAt != "2024-05-01T07:00:00Z" {
		t.Fatalf("received=%q", msg.ReceivedAt)
	}
}

func TestToFetchedPrefersInternalDate(t *testing.T) {
	msg := toFetched("gm-1", 1714557600000, []byte("Subject: x\r\n\r\n"))
	if msg.ReceivedAt != "2024-05-01T10:00:00Z" {
		t.Fatalf("received=%q", msg.ReceivedAt)
	}
	if msg.MessageID != "gm-1" {
		t.Fatalf("message id should fall back to the gmail id, got %q", msg.MessageID)
	}
}

func TestDecodeBase64URL(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString([]byte(sampleRaw))
	got, err := decodeBase64URL(enc)
	if err != nil || string(got) != sampleRaw {
		t.Fatalf("raw decode failed: %v", err)
	}
	padded := base64.URLEncoding.EncodeToString([]byte("ab"))
	if got, err := decodeBase64URL(padded); err != nil || string(got) != "ab" {
		t.Fatalf("padded decode failed: %v", err)
	}
	if _, err := decodeBase64URL("***"); err == nil {
		t.Fatal("expected error")
	}
}
