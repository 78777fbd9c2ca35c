package service

import (
	"context"

	"github.com/brightpath/safety-engine/internal/audit"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/model"
)

// canGuard reports whether caller may act on the child's alerts and data as a
// guardian. Children never qualify.
func canGuard(caller *model.Caller, profile *model.ChildProfile) bool {
	if caller == nil || profile == nil {
		return false
	}
	switch caller.Role {
	case model.RoleAdmin:
		return true
	case model.RoleParent:
		return profile.ParentID == caller.ID || caller.ManagesChild(profile.ID)
	case model.RoleEducator:
		return profile.HasEducator(caller.ID) || caller.ManagesChild(profile.ID)
	}
	return false
}

func authorizeGuardian(ctx context.Context, caller *model.Caller, profile *model.ChildProfile, action string) error {
	if canGuard(caller, profile) {
		return nil
	}
	denyAccess(ctx, caller, profile.ID, action)
	return apperrors.Forbidden("Not authorized for this child")
}

// authorizeReader admits the child itself in addition to its guardians.
func authorizeReader(ctx context.Context, caller *model.Caller, profile *model.ChildProfile, action string) error {
	if caller != nil && caller.IsChild(profile.ID) {
		return nil
	}
	return authorizeGuardian(ctx, caller, profile, action)
}

func denyAccess(ctx context.Context, caller *model.Caller, childID, action string) {
	event := audit.Event{
		Type:    audit.EventAccessDenied,
		ChildID: childID,
		Details: map[string]interface{}{"action": action},
	}
	if caller != nil {
		event.ActorID = caller.ID
		event.ActorRole = string(caller.Role)
	}
	audit.Log(ctx, event)
}
