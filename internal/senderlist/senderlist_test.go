package senderlist_test

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mikey/phishing-detector/internal/senderlist"
)

func TestIsSuspicious_DefaultList(t *testing.T) {
	c := senderlist.NewChecker(senderlist.DefaultSuspicious, zaptest.NewLogger(t))

	tests := []struct {
		sender string
		want   bool
		entry  string
	}{
		{"a@x.ru", true, ".ru"},
		{"Support <help@mail.example.cn>", true, ".cn"},
		{"someone@qq.com", true, "qq.com"},
		{"someone@mx.163.com", true, "163.com"},
		{"someone@protonmail.ch", true, "protonmail"},
		{"someone@yopmail.com", true, "yopmail"},
		{"unknown", true, "unknown"},
		{"", true, "unknown"},
		{"colleague@example.com", false, ""},
		{"user@notqq.com", false, ""},
		{"user@ru.example.com", false, ""},
		{"user@protonmailer.com", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			entry, got := c.IsSuspicious(tt.sender)
			if got != tt.want {
				t.Fatalf("IsSuspicious(%q) = %v, want %v", tt.sender, got, tt.want)
			}
			if entry != tt.entry {
				t.Errorf("expected entry %q, got %q", tt.entry, entry)
			}
		})
	}
}

func TestIsSuspicious_EmptyList(t *testing.T) {
	c := senderlist.NewChecker(nil, nil)
	if _, got := c.IsSuspicious("a@x.ru"); got {
		t.Error("empty list must not flag anything")
	}
}

func TestDomain(t *testing.T) {
	if got := senderlist.Domain("John <John@Example.COM>"); got != "example.com" {
		t.Errorf("expected example.com, got %q", got)
	}
	if got := senderlist.Domain("no-at-sign"); got != "" {
		t.Errorf("expected empty domain, got %q", got)
	}
}
