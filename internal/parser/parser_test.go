package parser_test

import (
	"testing"

	"github.com/mikey/phishing-detector/internal/parser"
)

// ─── Headers ──────────────────────────────────────────────────────────────────

func TestParse_HeadersAndBody(t *testing.T) {
	e := parser.Parse("From: a@x.ru\nSubject: URGENT\nClick http://evil.example now")

	if e.Sender != "a@x.ru" {
		t.Errorf("expected sender a@x.ru, got %q", e.Sender)
	}
	if e.Receiver != "unknown" {
		t.Errorf("expected receiver unknown, got %q", e.Receiver)
	}
	if e.Subject != "urgent" {
		t.Errorf("expected lowercased subject, got %q", e.Subject)
	}
	if e.Body != "click http://evil.example now" {
		t.Errorf("unexpected body %q", e.Body)
	}
	if e.URLCount != 1 {
		t.Errorf("expected 1 url, got %d", e.URLCount)
	}
	if e.SubjectLength != 6 {
		t.Errorf("expected subject length 6, got %d", e.SubjectLength)
	}
}

func TestParse_HeaderPrefixIsCaseInsensitive(t *testing.T) {
	e := parser.Parse("FROM: Boss@Corp.COM\nto: Me@Corp.com\nSUBJECT: Re: lunch: today\nhello")

	if e.Sender != "boss@corp.com" {
		t.Errorf("got sender %q", e.Sender)
	}
	if e.Receiver != "me@corp.com" {
		t.Errorf("got receiver %q", e.Receiver)
	}
	if e.Subject != "re: lunch: today" {
		t.Errorf("only the first colon should split, got %q", e.Subject)
	}
}

func TestParse_HeaderURLsDoNotCount(t *testing.T) {
	e := parser.Parse("From: http://spoof.example\nSubject: see https://a.example\nplain body")
	if e.URLCount != 0 {
		t.Errorf("header urls must not count, got %d", e.URLCount)
	}
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestParse_EmptyInput(t *testing.T) {
	e := parser.Parse("")
	if e.Sender != "unknown" || e.Receiver != "unknown" {
		t.Errorf("expected unknown addresses, got %q / %q", e.Sender, e.Receiver)
	}
	if e.Subject != "" || e.Body != "" {
		t.Errorf("expected empty subject and body, got %q / %q", e.Subject, e.Body)
	}
	if e.URLCount != 0 || e.SubjectLength != 0 {
		t.Errorf("expected zero counts, got %d / %d", e.URLCount, e.SubjectLength)
	}
}

func TestParse_NoHeaders_WholeTextIsBody(t *testing.T) {
	e := parser.Parse("Verify your account\nhttps://a.example/x and HTTP://b.example")
	if e.Sender != "unknown" || e.Receiver != "unknown" || e.Subject != "" {
		t.Errorf("unexpected header defaults: %+v", e)
	}
	if e.URLCount != 2 {
		t.Errorf("expected 2 urls, got %d", e.URLCount)
	}
}

func TestParse_DropsBlankLinesKeepsOrder(t *testing.T) {
	e := parser.Parse("Line One\n   \n\r\nLine Two\r\n\tindented")
	want := "line one\nline two\n\tindented"
	if e.Body != want {
		t.Errorf("expected %q, got %q", want, e.Body)
	}
}

func TestParse_BareHTTPIsNotURL(t *testing.T) {
	e := parser.Parse("the word http alone")
	if e.URLCount != 0 {
		t.Errorf("expected 0, got %d", e.URLCount)
	}
}

func TestParse_SubjectLengthCountsRunes(t *testing.T) {
	e := parser.Parse("Subject: Zahlung fällig")
	if e.SubjectLength != 14 {
		t.Errorf("expected 14, got %d", e.SubjectLength)
	}
}

// ─── Normalize ────────────────────────────────────────────────────────────────

func TestNormalize_CleansFields(t *testing.T) {
	e := parser.Normalize("  ", " X@Y.com ", "  Hello ", " Go to HTTPS://x.example ")
	if e.Sender != "unknown" {
		t.Errorf("got sender %q", e.Sender)
	}
	if e.Receiver != "x@y.com" {
		t.Errorf("got receiver %q", e.Receiver)
	}
	if e.Subject != "hello" || e.SubjectLength != 5 {
		t.Errorf("got subject %q len %d", e.Subject, e.SubjectLength)
	}
	if e.URLCount != 1 {
		t.Errorf("got url count %d", e.URLCount)
	}
}
