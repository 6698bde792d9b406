package model

// Power level bands. Higher outranks lower within a clan.
const (
	PowerOwner         = 999 // exactly one role per clan holds this
	PowerDefaultMember = 10  // the system "Member" role
	MaxCustomPower     = 799 // 800+ is reserved; custom roles must stay below
)

// ClanPermissions are the clan-level boolean toggles. They gate
// non-hierarchical actions and are independent of power level.
type ClanPermissions struct {
	CanEditDetails         bool `json:"canEditDetails"`
	CanEditAppearance      bool `json:"canEditAppearance"`
	CanEditRoles           bool `json:"canEditRoles"`
	CanEditApplicationForm bool `json:"canEditApplicationForm"`
	CanAcceptMembers       bool `json:"canAcceptMembers"`
	CanInviteMembers       bool `json:"canInviteMembers"`
	CanUseClanTags         bool `json:"canUseClanTags"`
	CanAccessAdminChat     bool `json:"canAccessAdminChat"`
}

// MemberPermissions are power thresholds for actions against other members.
// An action is permitted only against targets whose role power does not
// exceed the relevant threshold.
type MemberPermissions struct {
	MaxKickPower    int `json:"maxKickPower" binding:"min=0,max=999"`
	MaxMutePower    int `json:"maxMutePower" binding:"min=0,max=999"`
	MaxPromotePower int `json:"maxPromotePower" binding:"min=0,max=999"`
	MaxDemotePower  int `json:"maxDemotePower" binding:"min=0,max=999"`
	MaxWarnPower    int `json:"maxWarnPower" binding:"min=0,max=999"`
}

// RolePermissions is the fixed-shape permission record stored per role.
// Unknown keys are rejected at bind time rather than silently stored.
type RolePermissions struct {
	ClanPermissions   ClanPermissions   `json:"clanPermissions"`
	MemberPermissions MemberPermissions `json:"memberPermissions"`
}

// ClanRole is a named permission bundle scoped to one clan.
// System roles (Owner, Member) cannot be deleted and only allow
// name/color edits.
type ClanRole struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ClanID       int64           `gorm:"not null;index:idx_clan_roles_clan" json:"clan_id"`
	Name         string          `gorm:"size:50;not null" json:"name"`
	Color        string          `gorm:"size:7;default:'#AAAAAA'" json:"color"`
	PowerLevel   int             `gorm:"default:1;not null" json:"power_level"`
	Permissions  RolePermissions `gorm:"serializer:json" json:"permissions"`
	IsSystemRole bool            `gorm:"default:false" json:"is_system_role"`
}

// OwnerRolePermissions returns the full permission set held by the Owner role.
func OwnerRolePermissions() RolePermissions {
	return RolePermissions{
		ClanPermissions: ClanPermissions{
			CanEditDetails: true, CanEditAppearance: true, CanEditRoles: true,
			CanEditApplicationForm: true, CanAcceptMembers: true, CanInviteMembers: true,
			CanUseClanTags: true, CanAccessAdminChat: true,
		},
		MemberPermissions: MemberPermissions{
			MaxKickPower: PowerOwner, MaxMutePower: PowerOwner, MaxPromotePower: PowerOwner,
			MaxDemotePower: PowerOwner, MaxWarnPower: PowerOwner,
		},
	}
}
