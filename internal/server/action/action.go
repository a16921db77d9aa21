// Package action implements the Action capability of spec §4.5: a
// best-effort per-profile side effect on some device class. Unlike a
// Driver, an Action's probe either succeeds or fails outright — there
// is no defer/retry story, since actions are opportunistic polish on
// top of whatever driver was selected, not something the manager's
// invariants depend on.
package action

import (
	"context"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

// Action applies a device-class side effect on every profile
// transition (spec §4.5/§4.6: "the manager applies all installed
// actions on every profile transition, in registry order").
type Action interface {
	Name() string
	Probe(ctx context.Context) bool
	Apply(ctx context.Context, target profile.Profile) error
	Close() error
}

// Constructor builds an Action candidate for discovery.
type Constructor func() (Action, bool)
