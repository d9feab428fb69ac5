package reply

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

type fakeGateway struct {
	raw    string
	ok     bool
	prompt string
	opts   out.GenerateOptions
}

func (f *fakeGateway) CheckConnection(ctx context.Context) (bool, []string) { return f.ok, nil }
func (f *fakeGateway) ListModels(ctx context.Context) ([]string, error)     { return nil, nil }
func (f *fakeGateway) SelectModel(ctx context.Context, preferred string) (string, bool) {
	return "fake", true
}
func (f *fakeGateway) Close() {}

func (f *fakeGateway) GenerateText(ctx context.Context, prompt string, opts out.GenerateOptions) (string, bool) {
	f.prompt, f.opts = prompt, opts
	return f.raw, f.ok
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"english label", "Reply: Thanks for the note.", "Thanks for the note."},
		{"korean label", "답장: 확인했습니다.", "확인했습니다."},
		{"stacked labels", "  Response:\nReply: Sure.  ", "Sure."},
		{"case insensitive", "REPLY: ok", "ok"},
		{"label later is kept", "Thanks. Reply: soon", "Thanks. Reply: soon"},
		{"plain", "  Hello  ", "Hello"},
		{"only label", "Reply:", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanReply(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDraftReply(t *testing.T) {
	gw := &fakeGateway{ok: true, raw: "Reply: I will send it today.\n\nBest regards."}
	d := NewDrafter(gw, Config{}, zerolog.Nop())

	email := &domain.EmailRecord{
		Subject:  "Report",
		Sender:   "boss@example.com",
		BodyText: strings.Repeat("a", 2000),
	}
	text, ok := d.DraftReply(context.Background(), email)
	if !ok {
		t.Fatal("expected success")
	}
	if text != "I will send it today.\n\nBest regards." {
		t.Errorf("unexpected reply %q", text)
	}
	if gw.opts.Temperature != Temperature {
		t.Errorf("expected temperature %v, got %v", Temperature, gw.opts.Temperature)
	}
	if gw.opts.MaxTokens != MaxTokens {
		t.Errorf("expected max tokens %d, got %d", MaxTokens, gw.opts.MaxTokens)
	}
	if strings.Contains(gw.prompt, strings.Repeat("a", DefaultBodyLimit+1)) {
		t.Error("expected body truncated to the reply limit")
	}
	if !strings.Contains(gw.prompt, strings.Repeat("a", DefaultBodyLimit)+"...") {
		t.Error("expected truncation marker")
	}
}

func TestDraftReplyFailure(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeGateway
	}{
		{"gateway none", &fakeGateway{ok: false}},
		{"only a label", &fakeGateway{ok: true, raw: "Response:  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := NewDrafter(tt.gw, Config{}, zerolog.Nop()).DraftReply(context.Background(), &domain.EmailRecord{Subject: "x"})
			if ok || text != "" {
				t.Errorf("expected no reply, got %q", text)
			}
		})
	}
}

func TestBuildPromptStyle(t *testing.T) {
	email := &domain.EmailRecord{Subject: "회의", Sender: "kim@example.com", SenderName: "Kim", BodyText: "내일 회의 가능하신가요?"}

	prompt := BuildPrompt(email, Style{Tone: ToneFriendly, Language: "Korean"}, 0)

	for _, want := range []string{
		"friendly, warm tone",
		"Subject: 회의",
		"From: Kim <kim@example.com>",
		"Write in Korean.",
		"between 200 and 400 characters",
		`"감사합니다." or "안부 전합니다."`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q\n%s", want, prompt)
		}
	}
}

func TestParseTone(t *testing.T) {
	if ParseTone("Casual") != ToneCasual {
		t.Error("expected casual")
	}
	if ParseTone("sarcastic") != ToneProfessional {
		t.Error("expected fallback to professional")
	}
}
