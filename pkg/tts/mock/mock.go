// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio and timepoints to consumers and to
// verify the requests reaching the synthesis backend. Script a sequence of
// per-call responses to exercise retry behaviour:
//
//	p := &mock.Provider{
//	    Script: []mock.Response{
//	        {Err: tts.NewError("mock", tts.KindAPI, errors.New("boom"))},
//	        {Result: &tts.Result{Audio: []byte("audio")}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
)

// Response is one scripted Synthesize outcome.
type Response struct {
	// Result is returned when Err is nil.
	Result *tts.Result

	// Err, if non-nil, is returned instead of Result.
	Err error
}

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// Caps is returned by Capabilities.
	Caps tts.Capabilities

	// Script is the sequence of responses consumed one per Synthesize call,
	// in order. When exhausted (or empty), Result and Err apply instead.
	Script []Response

	// Result is returned once Script is exhausted. When nil and Err is nil,
	// Synthesize returns a small placeholder result.
	Result *tts.Result

	// Err, if non-nil, is returned once Script is exhausted.
	Err error

	// --- Call records ---

	// Calls records every Synthesize invocation in order.
	Calls []SynthesizeCall

	next int
}

// Name returns NameValue, or "mock" when unset.
func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

// Capabilities returns Caps.
func (p *Provider) Capabilities() tts.Capabilities {
	return p.Caps
}

// Synthesize records the call and plays back the next scripted response.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})

	if p.next < len(p.Script) {
		r := p.Script[p.next]
		p.next++
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Result, nil
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &tts.Result{Audio: []byte("mock-audio"), Format: tts.FormatMP3}, nil
}

// CallCount returns the number of Synthesize invocations so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.next = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
