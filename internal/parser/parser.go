// Package parser turns raw email text into core.ParsedEmail values and
// applies the same field cleaning to tabular training records.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mikey/phishing-detector/internal/core"
)

// UnknownAddress is used for senders and receivers that are absent
const UnknownAddress = "unknown"

var urlPattern = regexp.MustCompile(`(?i)http\S+`)

// Parse splits raw email text into header fields and body. It never fails:
// empty input yields an email with every field at its default.
func Parse(raw string) *core.ParsedEmail {
	var sender, receiver, subject string
	var bodyLines []string

	for _, line := range splitLines(raw) {
		low := strings.ToLower(line)
		switch {
		case strings.HasPrefix(low, "from:"):
			sender = headerValue(line)
		case strings.HasPrefix(low, "to:"):
			receiver = headerValue(line)
		case strings.HasPrefix(low, "subject:"):
			subject = headerValue(line)
		case strings.TrimSpace(line) != "":
			bodyLines = append(bodyLines, line)
		}
	}

	body := strings.Join(bodyLines, "\n")
	return &core.ParsedEmail{
		Sender:        CleanAddress(sender),
		Receiver:      CleanAddress(receiver),
		Subject:       strings.ToLower(subject),
		Body:          strings.ToLower(body),
		URLCount:      CountURLs(body),
		SubjectLength: utf8.RuneCountInString(subject),
	}
}

// CleanAddress lowercases and trims an address, defaulting to "unknown"
func CleanAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return UnknownAddress
	}
	return addr
}

// CleanText trims and lowercases a subject or body field
func CleanText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// CountURLs returns the number of non-overlapping http(s) URL matches in text
func CountURLs(text string) int {
	return len(urlPattern.FindAllStringIndex(text, -1))
}

// Normalize builds a ParsedEmail from already separated fields, as found in
// training data
func Normalize(sender, receiver, subject, body string) *core.ParsedEmail {
	subject = CleanText(subject)
	body = CleanText(body)
	return &core.ParsedEmail{
		Sender:        CleanAddress(sender),
		Receiver:      CleanAddress(receiver),
		Subject:       subject,
		Body:          body,
		URLCount:      CountURLs(body),
		SubjectLength: utf8.RuneCountInString(subject),
	}
}

func headerValue(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(raw, "\n")
}
