package action

import (
	"context"
	"sync"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

// FakeAction is a no-hardware Action used by manager tests to assert
// apply-order and best-effort failure handling (spec §4.5/§8).
type FakeAction struct {
	NameValue   string
	ProbeResult bool
	ApplyErr    error

	mu      sync.Mutex
	Applied []profile.Profile
}

func (a *FakeAction) Name() string { return a.NameValue }

func (a *FakeAction) Probe(ctx context.Context) bool { return a.ProbeResult }

func (a *FakeAction) Apply(ctx context.Context, target profile.Profile) error {
	a.mu.Lock()
	a.Applied = append(a.Applied, target)
	a.mu.Unlock()

	return a.ApplyErr
}

func (a *FakeAction) Close() error { return nil }
