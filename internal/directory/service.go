// Package directory manages console users and their tenant-scoped role
// assignments. Users are never deleted: deactivation moves every role
// assignment to the inactive state.
package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/suteetoe/coopregistry/internal/identity"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	passwordAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Store is the persistence the directory needs.
type Store interface {
	repository.UserRepository
	repository.RoleRepository
	repository.TenantRepository
}

type Service struct {
	store    Store
	identity identity.Provider
	now      func() time.Time
	random   io.Reader
}

func NewService(store Store, provider identity.Provider) *Service {
	return &Service{
		store:    store,
		identity: provider,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// UserFilter narrows ListUsers. Role must be empty or a known role.
type UserFilter struct {
	TenantID *uint
	Search   string
	Role     string
}

type UserPage struct {
	Users      []model.User `json:"users"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

// NewUser is the input of CreateUser.
type NewUser struct {
	FullName string     `json:"full_name"`
	Email    string     `json:"email"`
	Phone    string     `json:"phone"`
	IDNumber string     `json:"id_number"`
	TenantID uint       `json:"tenant_id"`
	Role     model.Role `json:"role"`
}

// CreatedUser is returned once; the temporary password is not stored in
// clear anywhere.
type CreatedUser struct {
	UserID       string `json:"user_id"`
	TempPassword string `json:"temp_password"`
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// ListUsers returns one page of users with their role assignments, newest
// first. Tenant-scoped callers only see their own tenant.
func (s *Service) ListUsers(ctx context.Context, caller model.Principal, f UserFilter, page, pageSize int) (*UserPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	filter := repository.UserFilter{
		TenantID: f.TenantID,
		Search:   strings.TrimSpace(f.Search),
	}
	if f.Role != "" {
		role, ok := model.ParseRole(f.Role)
		if !ok {
			return nil, errs.Validation("Unknown role filter: " + f.Role)
		}
		filter.Role = role
	}
	if caller.Role.TenantScoped() {
		tenantID := caller.TenantID
		filter.TenantID = &tenantID
	}

	users, total, err := s.store.ListUsers(ctx, filter, repository.Page{
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, errs.Internal("Failed to load users", err)
	}
	return &UserPage{Users: users, TotalCount: total, Page: page, PageSize: pageSize}, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("User not found")
	}
	if err != nil {
		return nil, errs.Internal("Failed to load user", err)
	}
	return user, nil
}

func validateNewUser(in *NewUser) error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.IDNumber = strings.TrimSpace(in.IDNumber)

	switch {
	case in.FullName == "":
		return errs.Validation("Full name is required")
	case in.Email == "":
		return errs.Validation("Email is required")
	case in.Phone == "":
		return errs.Validation("Phone is required")
	case in.IDNumber == "":
		return errs.Validation("ID number is required")
	case in.TenantID == 0:
		return errs.Validation("County is required")
	}

	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return errs.Validation("Email address is invalid")
	}

	if in.Role == "" {
		in.Role = model.RoleCountyOfficer
	}
	if !in.Role.Valid() {
		return errs.Validation("Unknown role: " + string(in.Role))
	}
	return nil
}

// TempPassword returns a credential of the form Coop<8 base-36 chars>!.
func (s *Service) TempPassword() (string, error) {
	var b strings.Builder
	b.WriteString("Coop")
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < 8; i++ {
		n, err := rand.Int(s.random, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	b.WriteByte('!')
	return b.String(), nil
}

// CreateUser provisions an identity account, the directory row keyed by the
// account's subject id, and one active role assignment. When the directory
// row cannot be written the account is deleted again; a failed role write
// leaves the user in place and returns a dependency error.
func (s *Service) CreateUser(ctx context.Context, actorID string, in NewUser) (*CreatedUser, error) {
	log := logger.FromContext(ctx)

	if actorID == "" {
		return nil, errs.ErrNotAuthenticated
	}
	if err := validateNewUser(&in); err != nil {
		return nil, err
	}

	password, err := s.TempPassword()
	if err != nil {
		return nil, errs.Internal("Failed to generate a temporary password", err)
	}

	subjectID, err := s.identity.CreateAccount(ctx, in.Email, password)
	if err != nil {
		prometheus.RecordError("identity_provisioning")
		if errors.Is(err, identity.ErrEmailTaken) {
			return nil, errs.Auth("An account with this email already exists", err)
		}
		return nil, errs.Auth("Failed to create login account", err)
	}

	user := model.User{
		ID:       subjectID,
		Email:    in.Email,
		FullName: in.FullName,
		Phone:    in.Phone,
		IDNumber: in.IDNumber,
		TenantID: in.TenantID,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		if delErr := s.identity.DeleteAccount(ctx, subjectID); delErr != nil {
			log.Error("Failed to remove orphaned account",
				zap.String("subject_id", subjectID),
				zap.Error(delErr))
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errs.Constraint("Email has already been used", err)
		}
		return nil, errs.Internal("Failed to create user", err)
	}

	role := model.UserRole{
		UserID:     user.ID,
		TenantID:   in.TenantID,
		Role:       in.Role,
		State:      model.RoleActive,
		AssignedAt: s.now(),
		AssignedBy: &actorID,
	}
	if err := s.store.CreateRole(ctx, &role); err != nil {
		log.Error("User created without role",
			zap.String("user_id", user.ID),
			zap.String("role", string(in.Role)),
			zap.Error(err))
		prometheus.RecordError("role_assignment")
		return nil, errs.Dependency("User was created but the role could not be assigned", err)
	}

	prometheus.RecordDirectoryOperation("create_user")
	log.Info("User created",
		zap.String("user_id", user.ID),
		zap.Uint("tenant_id", in.TenantID),
		zap.String("role", string(in.Role)))

	return &CreatedUser{UserID: user.ID, TempPassword: password}, nil
}

// UpdateUser applies patch as given.
func (s *Service) UpdateUser(ctx context.Context, userID string, patch model.UserPatch) error {
	n, err := s.store.UpdateUser(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return errs.Constraint("Update conflicts with an existing user", err)
		}
		return errs.Internal("Failed to update user", err)
	}
	if n == 0 {
		return errs.NotFound("User not found")
	}
	prometheus.RecordDirectoryOperation("update_user")
	return nil
}

// DeactivateUser moves every role assignment of the user to inactive.
func (s *Service) DeactivateUser(ctx context.Context, userID string) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.SetUserRolesState(ctx, userID, model.RoleInactive); err != nil {
		return errs.Internal("Failed to deactivate user", err)
	}

	prometheus.RecordDirectoryOperation("deactivate_user")
	logger.FromContext(ctx).Info("User deactivated", zap.String("user_id", userID))
	return nil
}

// AssignRole activates {user, tenant, role}, reusing an earlier assignment
// when one exists.
func (s *Service) AssignRole(ctx context.Context, actorID, userID string, role model.Role, tenantID uint) (*model.UserRole, error) {
	if actorID == "" {
		return nil, errs.ErrNotAuthenticated
	}
	if !role.Valid() {
		return nil, errs.Validation("Unknown role: " + string(role))
	}
	if tenantID == 0 {
		return nil, errs.Validation("County is required")
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	assignment := model.UserRole{
		UserID:     userID,
		TenantID:   tenantID,
		Role:       role,
		AssignedAt: s.now(),
		AssignedBy: &actorID,
	}
	if err := s.store.UpsertRole(ctx, &assignment); err != nil {
		return nil, errs.Internal("Failed to assign role", err)
	}

	prometheus.RecordDirectoryOperation("assign_role")
	return &assignment, nil
}

// GetRole returns one role assignment, active or not.
func (s *Service) GetRole(ctx context.Context, roleID uint) (*model.UserRole, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("Role assignment not found")
	}
	if err != nil {
		return nil, errs.Internal("Failed to load role assignment", err)
	}
	return role, nil
}

// RemoveRole deactivates one role assignment. The row is kept.
func (s *Service) RemoveRole(ctx context.Context, roleID uint) error {
	n, err := s.store.SetRoleState(ctx, roleID, model.RoleInactive)
	if err != nil {
		return errs.Internal("Failed to remove role", err)
	}
	if n == 0 {
		return errs.NotFound("Role assignment not found")
	}
	prometheus.RecordDirectoryOperation("remove_role")
	return nil
}

// ListTenants returns the active tenants, by name.
func (s *Service) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	tenants, err := s.store.ListTenants(ctx, true)
	if err != nil {
		return nil, errs.Internal("Failed to load counties", err)
	}
	return tenants, nil
}

// ActiveRoles returns the assignments a user can log in with.
func (s *Service) ActiveRoles(ctx context.Context, userID string) ([]model.UserRole, error) {
	roles, err := s.store.ActiveRoles(ctx, userID)
	if err != nil {
		return nil, errs.Internal("Failed to load roles", err)
	}
	return roles, nil
}
