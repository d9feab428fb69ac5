package classification

import (
	"context"

	"smart_mailbox/core/port/out"
)

type fakeGateway struct {
	raw     string
	ok      bool
	calls   int
	prompts []string
	opts    []out.GenerateOptions
}

func (f *fakeGateway) CheckConnection(ctx context.Context) (bool, []string) {
	return f.ok, []string{"fake"}
}

func (f *fakeGateway) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fake"}, nil
}

func (f *fakeGateway) SelectModel(ctx context.Context, preferred string) (string, bool) {
	return "fake", true
}

func (f *fakeGateway) GenerateText(ctx context.Context, prompt string, opts out.GenerateOptions) (string, bool) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if !f.ok {
		return "", false
	}
	return f.raw, true
}

func (f *fakeGateway) Close() {}
