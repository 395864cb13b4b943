package ai

import (
	"context"
	"sync"
)

// fakeModel is a scripted Model. Each call pops the next reply; the last
// reply repeats once the script runs out.
type fakeModel struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []Request
	block   bool // wait for ctx cancellation instead of replying
}

type fakeReply struct {
	text string
	err  error
}

func (f *fakeModel) Provider() string { return "fake" }

func (f *fakeModel) ModelName(tier Tier) string { return "fake-" + string(tier) }

func (f *fakeModel) Generate(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	block := f.block
	var reply fakeReply
	if len(f.replies) > 0 {
		reply = f.replies[0]
		if len(f.replies) > 1 {
			f.replies = f.replies[1:]
		}
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &Response{Text: reply.text, Model: f.ModelName(req.Tier), InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeModel) lastCall() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}
