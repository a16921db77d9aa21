package polkitutil

import (
	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
)

// Namespace is the polkit action-id prefix (spec §6).
const Namespace = "org.freedesktop.UPower.PowerProfiles"

const (
	ActionSwitchProfile = Namespace + ".switch-profile"
	ActionHoldProfile   = Namespace + ".hold-profile"
)

// Gate authorizes a bus sender against one of the two named actions
// (spec §4.8).
type Gate struct{}

// Authorize checks sender against action, returning *ppderrors.AccessDenied
// on denial (including a dismissed interactive prompt).
func (Gate) Authorize(sender, action string, allowInteraction bool) error {
	var flags CheckFlags
	if allowInteraction {
		flags = CheckAllowInteraction
	}

	ok, err := CheckAuthorization(sender, action, nil, flags)
	if err != nil {
		return &ppderrors.AccessDenied{Action: action}
	}

	if !ok {
		return &ppderrors.AccessDenied{Action: action}
	}

	return nil
}
