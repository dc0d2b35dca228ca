package output

import (
	"strings"
	"testing"
	"time"
)

func sampleAccount() *AccountView {
	return &AccountView{
		ID:            "acct-123",
		Email:         "user@example.com",
		Name:          "Test User",
		Active:        true,
		Locked:        false,
		Timeout:       "15m",
		TimeoutAction: "lock",
		HasPIN:        true,
		LastActiveAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewFormatter(t *testing.T) {
	for _, format := range []string{"text", "json", "yaml"} {
		if _, err := NewFormatter(format); err != nil {
			t.Errorf("NewFormatter(%q) error = %v", format, err)
		}
	}

	if _, err := NewFormatter("xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestJSONFormatter(t *testing.T) {
	formatter := NewJSONFormatter()

	out, err := formatter.Format(sampleAccount())
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if !strings.Contains(out, "user@example.com") {
		t.Error("output does not contain email")
	}
	if !strings.Contains(out, "acct-123") {
		t.Error("output does not contain account id")
	}
}

func TestYAMLFormatter(t *testing.T) {
	formatter := NewYAMLFormatter()

	out, err := formatter.Format(&StatusView{
		ActiveAccount: "user@example.com",
		Locked:        true,
		Accounts:      2,
	})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if !strings.Contains(out, "user@example.com") {
		t.Error("output does not contain active account")
	}
	if !strings.Contains(out, "accounts: 2") {
		t.Error("output does not contain account count")
	}
}

func TestTextFormatter_Account(t *testing.T) {
	formatter := NewTextFormatter()

	out, err := formatter.Format(sampleAccount())
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	if !strings.Contains(out, "user@example.com") {
		t.Error("output does not contain email")
	}
	if !strings.Contains(out, "unlocked") {
		t.Error("output does not contain lock state")
	}
}

func TestTextFormatter_List(t *testing.T) {
	formatter := NewTextFormatter()

	out, err := formatter.FormatList([]AccountView{*sampleAccount()})
	if err != nil {
		t.Fatalf("FormatList failed: %v", err)
	}
	if !strings.Contains(out, "user@example.com") {
		t.Error("list output does not contain email")
	}

	out, err = formatter.FormatList([]AccountView{})
	if err != nil {
		t.Fatalf("FormatList failed: %v", err)
	}
	if !strings.Contains(out, "No accounts") {
		t.Error("empty list output missing placeholder")
	}
}
