package clan

import "clanhub/model"

// Clan-level permission toggles. Names match the JSON keys stored per role.
const (
	PermEditDetails         = "canEditDetails"
	PermEditAppearance      = "canEditAppearance"
	PermEditRoles           = "canEditRoles"
	PermEditApplicationForm = "canEditApplicationForm"
	PermAcceptMembers       = "canAcceptMembers"
	PermInviteMembers       = "canInviteMembers"
	PermUseClanTags         = "canUseClanTags"
	PermAccessAdminChat     = "canAccessAdminChat"
)

// HasClanPermission reports whether the role carries the named toggle.
// Toggles are independent of power level.
func HasClanPermission(role *model.ClanRole, perm string) bool {
	p := role.Permissions.ClanPermissions
	switch perm {
	case PermEditDetails:
		return p.CanEditDetails
	case PermEditAppearance:
		return p.CanEditAppearance
	case PermEditRoles:
		return p.CanEditRoles
	case PermEditApplicationForm:
		return p.CanEditApplicationForm
	case PermAcceptMembers:
		return p.CanAcceptMembers
	case PermInviteMembers:
		return p.CanInviteMembers
	case PermUseClanTags:
		return p.CanUseClanTags
	case PermAccessAdminChat:
		return p.CanAccessAdminChat
	default:
		return false
	}
}

// CanActOn decides whether an actor role may perform a power-gated action
// against a target role. The actor must strictly outrank the target, and the
// target's power must not exceed the actor's threshold for the action
// (maxKickPower, maxWarnPower, ...). Both roles must belong to the same clan;
// callers are responsible for looking them up.
func CanActOn(actor, target *model.ClanRole, limit int) error {
	if actor.PowerLevel <= target.PowerLevel {
		return Forbiddenf("target role outranks or equals yours")
	}
	if target.PowerLevel > limit {
		return Forbiddenf("target role power %d exceeds your limit %d", target.PowerLevel, limit)
	}
	return nil
}

// ValidateCustomRolePower checks that a custom role's power level sits inside
// the writable band. 800 and above is reserved for system-equivalent ranks.
func ValidateCustomRolePower(power int) error {
	if power < 1 || power > model.MaxCustomPower {
		return Invalidf("power_level must be between 1 and %d", model.MaxCustomPower)
	}
	return nil
}
