package repository

import (
	"context"
	"errors"

	"github.com/suteetoe/coopregistry/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// UserFilter narrows ListUsers. Zero fields are not applied.
type UserFilter struct {
	TenantID *uint
	Search   string
	Role     model.Role
}

// ApplicationFilter narrows ListApplications. Zero fields are not applied.
type ApplicationFilter struct {
	Status            model.ApplicationStatus
	TenantID          *uint
	CooperativeTypeID *uint
	Search            string
}

// Page is an offset/limit window.
type Page struct {
	Offset int
	Limit  int
}

type UserRepository interface {
	ListUsers(ctx context.Context, filter UserFilter, page Page) ([]model.User, int64, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, id string, patch model.UserPatch) (int64, error)
}

type RoleRepository interface {
	CreateRole(ctx context.Context, role *model.UserRole) error
	GetRole(ctx context.Context, roleID uint) (*model.UserRole, error)
	// UpsertRole activates {user, tenant, role}, creating the row if needed.
	UpsertRole(ctx context.Context, role *model.UserRole) error
	SetRoleState(ctx context.Context, roleID uint, state model.RoleState) (int64, error)
	SetUserRolesState(ctx context.Context, userID string, state model.RoleState) (int64, error)
	ActiveRoles(ctx context.Context, userID string) ([]model.UserRole, error)
}

type TenantRepository interface {
	ListTenants(ctx context.Context, activeOnly bool) ([]model.Tenant, error)
	GetTenant(ctx context.Context, id uint) (*model.Tenant, error)
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

type ApplicationRepository interface {
	ListApplications(ctx context.Context, filter ApplicationFilter, page Page) ([]model.RegistrationApplication, int64, error)
	GetApplication(ctx context.Context, id uint) (*model.RegistrationApplication, error)
	// TransitionApplication applies patch only while the application is in one
	// of from. It returns the number of rows updated.
	TransitionApplication(ctx context.Context, id uint, from []model.ApplicationStatus, patch model.ApplicationTransition) (int64, error)
	CountPendingByTenant(ctx context.Context) (map[uint]int64, error)
}

type CooperativeRepository interface {
	CountRegistrationsWithPrefix(ctx context.Context, tenantID uint, prefix string) (int64, error)
	CreateCooperative(ctx context.Context, coop *model.Cooperative) error
}

type CooperativeTypeRepository interface {
	ListCooperativeTypes(ctx context.Context) ([]model.CooperativeType, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID string, id uint) (int64, error)
}

// Store groups every repository. WithTx runs fn against a Store bound to one
// transaction, committing when fn returns nil.
type Store interface {
	UserRepository
	RoleRepository
	TenantRepository
	AccountRepository
	ApplicationRepository
	CooperativeRepository
	CooperativeTypeRepository
	NotificationRepository

	WithTx(ctx context.Context, fn func(Store) error) error
}
