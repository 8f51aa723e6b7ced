package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/suteetoe/coopregistry/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestContainsPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, "%COOP%", containsPattern("COOP"))
	assert.Equal(t, `%50\%\_off%`, containsPattern("50%_off"))
	assert.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)), ErrDuplicate)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
}

// GormStoreSuite runs against a real Postgres named by TEST_DATABASE_DSN.
type GormStoreSuite struct {
	suite.Suite
	db     *gorm.DB
	store  *GormStore
	tenant model.Tenant
}

func TestGormStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	suite.Run(t, &GormStoreSuite{db: db, store: NewGormStore(db)})
}

func (s *GormStoreSuite) SetupTest() {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		s.Require().NoError(s.db.Migrator().DropTable(models[i]))
	}
	s.Require().NoError(s.db.AutoMigrate(models...))

	s.tenant = model.Tenant{Name: "Nakuru", Type: model.TenantTypeCounty, Active: true}
	s.Require().NoError(s.db.Create(&s.tenant).Error)
}

func (s *GormStoreSuite) addUser(name string, roles ...model.Role) model.User {
	ctx := context.Background()
	u := model.User{ID: uuid.NewString(), Email: name + "@coop.test", FullName: name, TenantID: s.tenant.ID}
	s.Require().NoError(s.store.CreateUser(ctx, &u))
	for _, r := range roles {
		s.Require().NoError(s.store.CreateRole(ctx, &model.UserRole{
			UserID: u.ID, TenantID: s.tenant.ID, Role: r, State: model.RoleActive, AssignedAt: time.Now(),
		}))
	}
	return u
}

func (s *GormStoreSuite) TestRoleFilterKeepsCountConsistent() {
	ctx := context.Background()
	s.addUser("alice", model.RoleCountyOfficer)
	s.addUser("bob", model.RoleCountyAdmin)
	carol := s.addUser("carol", model.RoleCountyOfficer)
	_, err := s.store.SetUserRolesState(ctx, carol.ID, model.RoleInactive)
	s.Require().NoError(err)

	users, total, err := s.store.ListUsers(ctx, UserFilter{Role: model.RoleCountyOfficer}, Page{Limit: 10})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(users, 1)
	s.Equal("alice", users[0].FullName)
	s.Len(users[0].Roles, 1)
}

func (s *GormStoreSuite) TestDuplicateEmailIsDuplicate() {
	s.addUser("dave")
	err := s.store.CreateUser(context.Background(), &model.User{
		ID: uuid.NewString(), Email: "dave@coop.test", FullName: "Dave Two", TenantID: s.tenant.ID,
	})
	s.ErrorIs(err, ErrDuplicate)
}

func (s *GormStoreSuite) TestUpsertRoleReactivates() {
	ctx := context.Background()
	u := s.addUser("erin")

	first := model.UserRole{UserID: u.ID, TenantID: s.tenant.ID, Role: model.RoleAuditor, AssignedAt: time.Now().Add(-time.Hour)}
	s.Require().NoError(s.store.UpsertRole(ctx, &first))
	_, err := s.store.SetRoleState(ctx, first.ID, model.RoleInactive)
	s.Require().NoError(err)

	again := model.UserRole{UserID: u.ID, TenantID: s.tenant.ID, Role: model.RoleAuditor, AssignedAt: time.Now()}
	s.Require().NoError(s.store.UpsertRole(ctx, &again))

	roles, err := s.store.ActiveRoles(ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(roles, 1)
	s.Equal(first.ID, roles[0].ID)
}

func (s *GormStoreSuite) TestTransitionOnlyFromActionable() {
	ctx := context.Background()
	app := model.RegistrationApplication{
		ApplicationNumber: "APP-2025-00001", ProposedName: "Tujenge SACCO",
		TenantID: s.tenant.ID, Status: model.StatusApproved,
	}
	s.Require().NoError(s.db.Create(&app).Error)

	n, err := s.store.TransitionApplication(ctx, app.ID, model.ActionableStatuses, model.ApplicationTransition{Status: model.StatusRejected})
	s.Require().NoError(err)
	s.Zero(n)

	got, err := s.store.GetApplication(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusApproved, got.Status)
}

func (s *GormStoreSuite) TestListApplicationsOrderAndSearch() {
	ctx := context.Background()
	early := time.Now().Add(-48 * time.Hour)
	late := time.Now().Add(-time.Hour)
	for _, a := range []model.RegistrationApplication{
		{ApplicationNumber: "APP-1", ProposedName: "Draft Dairy", TenantID: s.tenant.ID, Status: model.StatusDraft},
		{ApplicationNumber: "APP-2", ProposedName: "Early Housing", TenantID: s.tenant.ID, Status: model.StatusSubmitted, SubmittedAt: &early},
		{ApplicationNumber: "APP-3", ProposedName: "Late Dairy", TenantID: s.tenant.ID, Status: model.StatusSubmitted, SubmittedAt: &late},
	} {
		s.Require().NoError(s.db.Create(&a).Error)
	}

	apps, total, err := s.store.ListApplications(ctx, ApplicationFilter{}, Page{Limit: 10})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Equal([]string{"APP-3", "APP-2", "APP-1"}, []string{apps[0].ApplicationNumber, apps[1].ApplicationNumber, apps[2].ApplicationNumber})

	apps, total, err = s.store.ListApplications(ctx, ApplicationFilter{Search: "dairy"}, Page{Limit: 1})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(apps, 1)
}

func (s *GormStoreSuite) TestListApplicationsPagesWithEqualTimestamps() {
	ctx := context.Background()
	at := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 1; i <= 4; i++ {
		a := model.RegistrationApplication{
			ApplicationNumber: fmt.Sprintf("APP-TIE-%d", i), ProposedName: "Tied", TenantID: s.tenant.ID,
			Status: model.StatusSubmitted, SubmittedAt: &at, CreatedAt: at,
		}
		s.Require().NoError(s.db.Create(&a).Error)
	}

	first, _, err := s.store.ListApplications(ctx, ApplicationFilter{Search: "Tied"}, Page{Offset: 0, Limit: 2})
	s.Require().NoError(err)
	second, _, err := s.store.ListApplications(ctx, ApplicationFilter{Search: "Tied"}, Page{Offset: 2, Limit: 2})
	s.Require().NoError(err)

	s.Require().Len(first, 2)
	s.Require().Len(second, 2)
	s.Greater(first[0].ID, first[1].ID)
	s.Greater(first[1].ID, second[0].ID)
	s.Greater(second[0].ID, second[1].ID)
}

func (s *GormStoreSuite) TestGetRole() {
	ctx := context.Background()
	u := s.addUser("auditor", model.RoleAuditor)
	roles, err := s.store.ActiveRoles(ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(roles, 1)

	got, err := s.store.GetRole(ctx, roles[0].ID)
	s.Require().NoError(err)
	s.Equal(model.RoleAuditor, got.Role)
	s.Require().NotNil(got.Tenant)
	s.Equal("Nakuru", got.Tenant.Name)

	_, err = s.store.GetRole(ctx, roles[0].ID+1000)
	s.ErrorIs(err, ErrNotFound)
}

func (s *GormStoreSuite) TestWithTxRollsBack() {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateCooperative(ctx, &model.Cooperative{
			RegistrationNumber: "COOP-2025-00001", Name: "Rolled Back", TenantID: s.tenant.ID,
			Status: model.CooperativeStatusRegistered, ApplicationID: 99,
		}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	n, err := s.store.CountRegistrationsWithPrefix(ctx, s.tenant.ID, "COOP-2025-")
	s.Require().NoError(err)
	s.Zero(n)
}
