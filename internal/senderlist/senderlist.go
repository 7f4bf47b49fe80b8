// Package senderlist flags sender addresses that belong to free or
// low-trust mail domains.
package senderlist

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// DefaultSuspicious is the built-in low-trust list
var DefaultSuspicious = []string{".ru", ".cn", "qq.com", "163.com", "protonmail", "yopmail", "unknown"}

const unknownSender = "unknown"

// Checker matches sender addresses against a list of entries. An entry
// starting with a dot matches any domain ending with it, an entry with a
// dot matches that domain and its subdomains, and a bare label matches the
// first label of the registrable domain (protonmail matches protonmail.ch).
// The entry "unknown" matches a missing sender.
type Checker struct {
	entries []string
	logger  *zap.Logger
}

// NewChecker creates a checker. A nil or empty list disables matching.
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	normalized := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			normalized = append(normalized, e)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(normalized) > 0 {
		logger.Info("Initialized sender checker", zap.Strings("entries", normalized))
	}
	return &Checker{entries: normalized, logger: logger}
}

// IsSuspicious reports whether sender matches an entry, and which one
func (c *Checker) IsSuspicious(sender string) (string, bool) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		sender = unknownSender
	}

	domain := Domain(sender)
	for _, entry := range c.entries {
		if c.matches(entry, sender, domain) {
			c.logger.Debug("Sender matched low-trust entry",
				zap.String("sender", sender),
				zap.String("entry", entry))
			return entry, true
		}
	}
	return "", false
}

func (c *Checker) matches(entry, sender, domain string) bool {
	switch {
	case entry == unknownSender:
		return sender == unknownSender
	case domain == "":
		return false
	case strings.HasPrefix(entry, "."):
		return strings.HasSuffix(domain, entry)
	case strings.Contains(entry, "."):
		return domain == entry || strings.HasSuffix(domain, "."+entry)
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		registrable = domain
	}
	label, _, _ := strings.Cut(registrable, ".")
	return label == entry
}

// Domain extracts the lowercased domain of an address such as
// "Name <user@example.com>". It returns "" when there is no domain part.
func Domain(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	domain := strings.TrimSpace(addr[at+1:])
	domain = strings.TrimRight(domain, ">.) ")
	return strings.ToLower(domain)
}
