package clan

import (
	"context"
	"errors"

	"clanhub/model"
	"gorm.io/gorm"
)

// RoleInput is the payload for CreateRole.
type RoleInput struct {
	Name        string                `json:"name" binding:"required,min=1,max=50"`
	Color       string                `json:"color" binding:"omitempty,hexcolor"`
	PowerLevel  int                   `json:"power_level" binding:"required"`
	Permissions model.RolePermissions `json:"permissions"`
}

// CreateRole adds a custom role to the clan. Requires canEditRoles; custom
// power must sit in the 1–799 band.
func (s *Service) CreateRole(ctx context.Context, clanID, actorID int64, in RoleInput) (*model.ClanRole, error) {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return nil, err
	}
	if !HasClanPermission(actorRole, PermEditRoles) {
		return nil, Forbiddenf("missing permission: %s", PermEditRoles)
	}
	if err := ValidateCustomRolePower(in.PowerLevel); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&model.ClanRole{}).Where("clan_id = ?", clanID).Count(&count).Error; err != nil {
		return nil, err
	}
	if int(count) >= s.cfg.MaxRolesPerClan {
		return nil, Conflictf("clan already has the maximum of %d roles", s.cfg.MaxRolesPerClan)
	}
	var dup int64
	if err := s.db.Model(&model.ClanRole{}).
		Where("clan_id = ? AND name = ?", clanID, in.Name).Count(&dup).Error; err != nil {
		return nil, err
	}
	if dup > 0 {
		return nil, Conflictf("a role named %q already exists", in.Name)
	}

	role := model.ClanRole{
		ClanID:      clanID,
		Name:        in.Name,
		Color:       in.Color,
		PowerLevel:  in.PowerLevel,
		Permissions: in.Permissions,
	}
	if err := s.db.Create(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// RoleUpdateInput carries optional role edits. On system roles only Name and
// Color are accepted; a payload carrying PowerLevel or Permissions is
// rejected outright rather than partially applied.
type RoleUpdateInput struct {
	Name        *string                `json:"name" binding:"omitempty,min=1,max=50"`
	Color       *string                `json:"color" binding:"omitempty,hexcolor"`
	PowerLevel  *int                   `json:"power_level"`
	Permissions *model.RolePermissions `json:"permissions"`
}

// UpdateRole edits a role. Requires canEditRoles.
func (s *Service) UpdateRole(ctx context.Context, clanID, roleID, actorID int64, in RoleUpdateInput) (*model.ClanRole, error) {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return nil, err
	}
	if !HasClanPermission(actorRole, PermEditRoles) {
		return nil, Forbiddenf("missing permission: %s", PermEditRoles)
	}

	role, err := s.roleInClan(clanID, roleID)
	if err != nil {
		return nil, err
	}

	if role.IsSystemRole {
		if in.PowerLevel != nil {
			return nil, Invalidf("power_level is immutable on system roles")
		}
		if in.Permissions != nil {
			return nil, Invalidf("permissions are immutable on system roles")
		}
	}

	if in.Name != nil && *in.Name != role.Name {
		var dup int64
		if err := s.db.Model(&model.ClanRole{}).
			Where("clan_id = ? AND name = ? AND id <> ?", clanID, *in.Name, role.ID).Count(&dup).Error; err != nil {
			return nil, err
		}
		if dup > 0 {
			return nil, Conflictf("a role named %q already exists", *in.Name)
		}
		role.Name = *in.Name
	}
	if in.Color != nil {
		role.Color = *in.Color
	}
	if in.PowerLevel != nil {
		if err := ValidateCustomRolePower(*in.PowerLevel); err != nil {
			return nil, err
		}
		role.PowerLevel = *in.PowerLevel
	}
	if in.Permissions != nil {
		role.Permissions = *in.Permissions
	}

	if err := s.db.Save(role).Error; err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a custom role. System roles and roles still referenced
// by members are refused; callers must reassign members first.
func (s *Service) DeleteRole(ctx context.Context, clanID, roleID, actorID int64) error {
	_, actorRole, err := s.memberWithRole(clanID, actorID)
	if err != nil {
		return err
	}
	if !HasClanPermission(actorRole, PermEditRoles) {
		return Forbiddenf("missing permission: %s", PermEditRoles)
	}

	role, err := s.roleInClan(clanID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return Forbiddenf("system roles cannot be deleted")
	}

	var refs int64
	if err := s.db.Model(&model.ClanMember{}).Where("role_id = ?", role.ID).Count(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return Conflictf("%d members still hold this role; reassign them first", refs)
	}

	return s.db.Delete(role).Error
}

// Roles lists the clan's roles by power descending.
func (s *Service) Roles(ctx context.Context, clanID int64) ([]model.ClanRole, error) {
	var roles []model.ClanRole
	if err := s.db.Where("clan_id = ?", clanID).Order("power_level DESC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Service) roleInClan(clanID, roleID int64) (*model.ClanRole, error) {
	var role model.ClanRole
	if err := s.db.Where("id = ? AND clan_id = ?", roleID, clanID).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundf("role not found")
		}
		return nil, err
	}
	return &role, nil
}
