package classification

import (
	"strings"
	"testing"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/service/tagcatalog"
)

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		limit    int
		expected string
	}{
		{"short body", "Hello world", 100, "Hello world"},
		{"exact length", "Hello", 5, "Hello"},
		{"truncated", "Hello world, this is a long message", 10, "Hello worl..."},
		{"multibyte", "안녕하세요 반갑습니다", 5, "안녕하세요..."},
		{"no limit", "abc", 0, "abc"},
		{"empty body", "", 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateBody(tt.body, tt.limit); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><title>x</title></head><body><p>Hello&nbsp;<b>there</b></p><script>alert(1)</script><div>Line &amp; two</div></body></html>`
	got := StripHTML(in)
	if strings.Contains(got, "<") || strings.Contains(got, "alert") || strings.Contains(got, "title") {
		t.Errorf("expected markup removed, got %q", got)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "Line & two") {
		t.Errorf("expected text kept, got %q", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	email := &domain.EmailRecord{
		Subject:       "Invoice",
		Sender:        "billing@example.com",
		SenderName:    "Billing",
		Recipient:     "me@example.com",
		RecipientName: "Me",
		BodyText:      strings.Repeat("x", 30),
	}
	entries := []tagcatalog.Entry{
		{Name: "Important", Criterion: "money is involved"},
		{Name: "Spam", Criterion: "unsolicited"},
	}

	prompt := BuildPrompt(email, entries, 10)

	for _, want := range []string{
		"Subject: Invoice\n",
		"From: Billing <billing@example.com>\n",
		"To: Me <me@example.com>\n",
		"xxxxxxxxxx...\n",
		"- Important: money is involved\n",
		"- Spam: unsolicited\n",
		"JSON array",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, strings.Repeat("x", 11)) {
		t.Error("expected body to be truncated")
	}
	if strings.Index(prompt, "- Important") > strings.Index(prompt, "- Spam") {
		t.Error("expected tags in catalog order")
	}
}

func TestBuildPromptUsesHTMLWhenNoText(t *testing.T) {
	email := &domain.EmailRecord{Subject: "s", BodyHTML: "<p>Only <i>html</i></p>"}
	prompt := BuildPrompt(email, nil, 0)
	if !strings.Contains(prompt, "Only html") {
		t.Errorf("expected stripped html body, got:\n%s", prompt)
	}
}
