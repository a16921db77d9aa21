package polkitutil

import (
	"testing"

	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
)

func TestAuthorizeAllowed(t *testing.T) {
	restore := CheckAuthorization
	defer func() { CheckAuthorization = restore }()

	CheckAuthorization = func(sender, actionID string, details map[string]string, flags CheckFlags) (bool, error) {
		if actionID != ActionSwitchProfile {
			t.Fatalf("actionID = %q, want %q", actionID, ActionSwitchProfile)
		}

		return true, nil
	}

	if err := (Gate{}).Authorize(":1.42", ActionSwitchProfile, false); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
}

func TestAuthorizeDenied(t *testing.T) {
	restore := CheckAuthorization
	defer func() { CheckAuthorization = restore }()

	CheckAuthorization = func(sender, actionID string, details map[string]string, flags CheckFlags) (bool, error) {
		return false, nil
	}

	err := (Gate{}).Authorize(":1.42", ActionHoldProfile, false)

	var denied *ppderrors.AccessDenied
	if err == nil {
		t.Fatal("expected error")
	}

	if !asAccessDenied(err, &denied) {
		t.Fatalf("got %T, want *ppderrors.AccessDenied", err)
	}

	if denied.Action != ActionHoldProfile {
		t.Fatalf("Action = %q, want %q", denied.Action, ActionHoldProfile)
	}
}

func asAccessDenied(err error, target **ppderrors.AccessDenied) bool {
	ad, ok := err.(*ppderrors.AccessDenied)
	if ok {
		*target = ad
	}

	return ok
}
