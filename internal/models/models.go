package models

import "time"

// User statuses persisted on the User row.
const (
	StatusActive   = "Active"
	StatusLocked   = "Locked"
	StatusDisabled = "Disabled"
)

type User struct {
	UserID        string     `gorm:"type:uuid;primaryKey" json:"userId"`
	FirstName     *string    `gorm:"size:80" json:"firstName,omitempty"`
	LastName      *string    `gorm:"size:80" json:"lastName,omitempty"`
	FullName      *string    `gorm:"size:160" json:"fullName,omitempty"`
	Email         string     `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Phone         *string    `gorm:"size:32" json:"phone,omitempty"`
	Address       *string    `gorm:"size:300" json:"address,omitempty"`
	AvatarUrl     *string    `gorm:"size:500" json:"avatarUrl,omitempty"`
	Status        string     `gorm:"size:20;not null;default:Active" json:"status"`
	EmailVerified bool       `gorm:"not null;default:false" json:"emailVerified"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`

	Account *Account `gorm:"foreignKey:UserID" json:"account,omitempty"`
	Roles   []Role   `gorm:"many2many:user_roles;foreignKey:UserID;joinForeignKey:UserID;References:RoleID;joinReferences:RoleID" json:"roles,omitempty"`
}

type Account struct {
	AccountID        string     `gorm:"type:uuid;primaryKey" json:"accountId"`
	Username         string     `gorm:"size:60;uniqueIndex;not null" json:"username"`
	PasswordHash     []byte     `json:"-"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
	UserID           string     `gorm:"type:uuid;uniqueIndex;not null" json:"userId"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

type Role struct {
	RoleID    string     `gorm:"type:uuid;primaryKey" json:"roleId"`
	Name      string     `gorm:"size:80;uniqueIndex;not null" json:"name"`
	IsSystem  bool       `gorm:"not null;default:false" json:"isSystem"`
	IsActive  bool       `gorm:"not null;default:true" json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	RolePermissions []RolePermission `gorm:"foreignKey:RoleID" json:"rolePermissions,omitempty"`
	Users           []User           `gorm:"many2many:user_roles;foreignKey:RoleID;joinForeignKey:RoleID;References:UserID;joinReferences:UserID" json:"-"`
}

type Module struct {
	ModuleID    int64      `gorm:"primaryKey;autoIncrement" json:"moduleId"`
	ModuleName  string     `gorm:"size:80;uniqueIndex;not null" json:"moduleName"`
	Description *string    `gorm:"size:300" json:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`

	RolePermissions []RolePermission `gorm:"foreignKey:ModuleID" json:"-"`
}

type Permission struct {
	PermissionID int64      `gorm:"primaryKey;autoIncrement" json:"permissionId"`
	Name         string     `gorm:"size:80;uniqueIndex;not null;column:permission_name" json:"permissionName"`
	Description  *string    `gorm:"size:300" json:"description,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`

	RolePermissions []RolePermission `gorm:"foreignKey:PermissionID" json:"-"`
}

// RolePermission is one cell of the Role x Module x Permission matrix. Rows are
// seeded densely on Role/Module/Permission creation and cascade-deleted with
// their parent, so a cell never dangles.
type RolePermission struct {
	RoleID       string `gorm:"type:uuid;primaryKey" json:"roleId"`
	ModuleID     int64  `gorm:"primaryKey" json:"moduleId"`
	PermissionID int64  `gorm:"primaryKey" json:"permissionId"`
	IsActive     bool   `gorm:"not null;default:true" json:"isActive"`

	Role       Role       `gorm:"foreignKey:RoleID" json:"-"`
	Module     Module     `gorm:"foreignKey:ModuleID" json:"-"`
	Permission Permission `gorm:"foreignKey:PermissionID" json:"-"`
}

type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    *string   `gorm:"type:uuid" json:"userId,omitempty"`
	Action    string    `gorm:"size:120;not null" json:"action"`
	Metadata  JSONB     `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
}
