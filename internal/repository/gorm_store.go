package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on gorm. The zero transaction state is the
// pooled connection; WithTx hands fn a GormStore bound to the transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching q anywhere, with q's own
// wildcards taken literally.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func (s *GormStore) ListUsers(ctx context.Context, f UserFilter, page Page) ([]model.User, int64, error) {
	defer prometheus.TrackDBOperation("list_users")(time.Now())

	// built twice; Count mutates the statement it runs on
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.User{})
		if f.TenantID != nil {
			q = q.Where("users.tenant_id = ?", *f.TenantID)
		}
		if f.Search != "" {
			like := containsPattern(f.Search)
			q = q.Where("(users.full_name ILIKE ? OR users.email ILIKE ? OR users.id_number ILIKE ?)", like, like, like)
		}
		if f.Role != "" {
			q = q.Where("EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = users.id AND ur.role = ? AND ur.is_active = ?)", f.Role, true)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	err := query().
		Preload("Tenant").
		Preload("Roles", func(db *gorm.DB) *gorm.DB {
			return db.Order("user_roles.assigned_at DESC")
		}).
		Preload("Roles.Tenant").
		Order("users.created_at DESC").
		Order("users.id DESC").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	defer prometheus.TrackDBOperation("get_user")(time.Now())

	var user model.User
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Preload("Roles", func(db *gorm.DB) *gorm.DB {
			return db.Order("user_roles.assigned_at DESC")
		}).
		Preload("Roles.Tenant").
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	defer prometheus.TrackDBOperation("create_user")(time.Now())
	return mapError(s.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error)
}

func (s *GormStore) UpdateUser(ctx context.Context, id string, patch model.UserPatch) (int64, error) {
	defer prometheus.TrackDBOperation("update_user")(time.Now())

	q := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id)
	if patch.Empty() {
		var n int64
		err := q.Count(&n).Error
		return n, err
	}

	cols := map[string]interface{}{}
	if patch.FullName != nil {
		cols["full_name"] = *patch.FullName
	}
	if patch.Phone != nil {
		cols["phone"] = *patch.Phone
	}
	if patch.IDNumber != nil {
		cols["id_number"] = *patch.IDNumber
	}
	if patch.TenantID != nil {
		cols["tenant_id"] = *patch.TenantID
	}
	result := q.Updates(cols)
	return result.RowsAffected, mapError(result.Error)
}

func (s *GormStore) CreateRole(ctx context.Context, role *model.UserRole) error {
	defer prometheus.TrackDBOperation("create_role")(time.Now())
	return mapError(s.db.WithContext(ctx).Omit(clause.Associations).Create(role).Error)
}

func (s *GormStore) UpsertRole(ctx context.Context, role *model.UserRole) error {
	defer prometheus.TrackDBOperation("upsert_role")(time.Now())

	role.State = model.RoleActive
	return mapError(s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "tenant_id"}, {Name: "role"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"is_active":   true,
				"assigned_at": role.AssignedAt,
				"assigned_by": role.AssignedBy,
			}),
		}).
		Create(role).Error)
}

func (s *GormStore) GetRole(ctx context.Context, roleID uint) (*model.UserRole, error) {
	defer prometheus.TrackDBOperation("get_role")(time.Now())

	var role model.UserRole
	if err := s.db.WithContext(ctx).Preload("Tenant").First(&role, roleID).Error; err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

func (s *GormStore) SetRoleState(ctx context.Context, roleID uint, state model.RoleState) (int64, error) {
	defer prometheus.TrackDBOperation("update_role")(time.Now())

	result := s.db.WithContext(ctx).Model(&model.UserRole{}).Where("id = ?", roleID).Update("is_active", state)
	return result.RowsAffected, result.Error
}

func (s *GormStore) SetUserRolesState(ctx context.Context, userID string, state model.RoleState) (int64, error) {
	defer prometheus.TrackDBOperation("update_role")(time.Now())

	result := s.db.WithContext(ctx).Model(&model.UserRole{}).Where("user_id = ?", userID).Update("is_active", state)
	return result.RowsAffected, result.Error
}

func (s *GormStore) ActiveRoles(ctx context.Context, userID string) ([]model.UserRole, error) {
	defer prometheus.TrackDBOperation("query_roles")(time.Now())

	var roles []model.UserRole
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("assigned_at DESC").
		Find(&roles).Error
	return roles, err
}

func (s *GormStore) ListTenants(ctx context.Context, activeOnly bool) ([]model.Tenant, error) {
	defer prometheus.TrackDBOperation("list_tenants")(time.Now())

	q := s.db.WithContext(ctx).Model(&model.Tenant{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var tenants []model.Tenant
	err := q.Order("name").Find(&tenants).Error
	return tenants, err
}

func (s *GormStore) GetTenant(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &tenant, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, account *model.Account) error {
	defer prometheus.TrackDBOperation("create_account")(time.Now())
	return mapError(s.db.WithContext(ctx).Create(account).Error)
}

func (s *GormStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	defer prometheus.TrackDBOperation("get_account")(time.Now())

	var account model.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

func (s *GormStore) DeleteAccount(ctx context.Context, id string) error {
	defer prometheus.TrackDBOperation("delete_account")(time.Now())
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Account{}).Error
}

func (s *GormStore) ListApplications(ctx context.Context, f ApplicationFilter, page Page) ([]model.RegistrationApplication, int64, error) {
	defer prometheus.TrackDBOperation("list_applications")(time.Now())

	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.RegistrationApplication{})
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.TenantID != nil {
			q = q.Where("tenant_id = ?", *f.TenantID)
		}
		if f.CooperativeTypeID != nil {
			q = q.Where("cooperative_type_id = ?", *f.CooperativeTypeID)
		}
		if f.Search != "" {
			like := containsPattern(f.Search)
			q = q.Where("(application_number ILIKE ? OR proposed_name ILIKE ?)", like, like)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var apps []model.RegistrationApplication
	err := query().
		Preload("Tenant").
		Preload("CooperativeType").
		Order("submitted_at DESC NULLS LAST").
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset).
		Limit(page.Limit).
		Find(&apps).Error
	if err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

func (s *GormStore) GetApplication(ctx context.Context, id uint) (*model.RegistrationApplication, error) {
	defer prometheus.TrackDBOperation("get_application")(time.Now())

	var app model.RegistrationApplication
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Preload("CooperativeType").
		First(&app, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &app, nil
}

func (s *GormStore) TransitionApplication(ctx context.Context, id uint, from []model.ApplicationStatus, patch model.ApplicationTransition) (int64, error) {
	defer prometheus.TrackDBOperation("transition_application")(time.Now())

	q := s.db.WithContext(ctx).Model(&model.RegistrationApplication{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	result := q.Updates(patch.Columns())
	return result.RowsAffected, mapError(result.Error)
}

func (s *GormStore) CountPendingByTenant(ctx context.Context) (map[uint]int64, error) {
	defer prometheus.TrackDBOperation("count_pending")(time.Now())

	var rows []struct {
		TenantID uint
		Total    int64
	}
	err := s.db.WithContext(ctx).
		Model(&model.RegistrationApplication{}).
		Select("tenant_id, COUNT(*) AS total").
		Where("status IN ?", model.ActionableStatuses).
		Group("tenant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.TenantID] = r.Total
	}
	return counts, nil
}

func (s *GormStore) CountRegistrationsWithPrefix(ctx context.Context, tenantID uint, prefix string) (int64, error) {
	defer prometheus.TrackDBOperation("count_registrations")(time.Now())

	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.Cooperative{}).
		Where("tenant_id = ? AND registration_number LIKE ?", tenantID, likeEscaper.Replace(prefix)+"%").
		Count(&n).Error
	return n, err
}

func (s *GormStore) CreateCooperative(ctx context.Context, coop *model.Cooperative) error {
	defer prometheus.TrackDBOperation("create_cooperative")(time.Now())
	return mapError(s.db.WithContext(ctx).Create(coop).Error)
}

func (s *GormStore) ListCooperativeTypes(ctx context.Context) ([]model.CooperativeType, error) {
	var types []model.CooperativeType
	err := s.db.WithContext(ctx).Order("name").Find(&types).Error
	return types, err
}

func (s *GormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	defer prometheus.TrackDBOperation("create_notification")(time.Now())
	return mapError(s.db.WithContext(ctx).Create(n).Error)
}

func (s *GormStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []model.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, userID string, id uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// Models lists every table the store owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.Tenant{},
		&model.Account{},
		&model.User{},
		&model.UserRole{},
		&model.CooperativeType{},
		&model.RegistrationApplication{},
		&model.Cooperative{},
		&model.Notification{},
	}
}

var _ Store = (*GormStore)(nil)
