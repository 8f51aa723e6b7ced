// Package repotest provides an in-memory repository.Store for service tests.
//
// The store keeps the same uniqueness rules as the database schema (user
// email, {user, tenant, role}, {tenant, registration number}, one cooperative
// per application) and reports violations as repository.ErrDuplicate. WithTx
// snapshots state and restores it when fn fails, so rollback behaviour can be
// asserted without Postgres.
//
// Use [Store.FailOn] to inject an error into a named method and
// [Store.OnCall] to run code before a method executes, for example to move
// an application out of an actionable status mid-transaction.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository"
)

type failure struct {
	err       error
	remaining int // <= 0 means every call
}

type state struct {
	nextID        uint
	tenants       map[uint]model.Tenant
	users         map[string]model.User
	roles         map[uint]model.UserRole
	accounts      map[string]model.Account
	applications  map[uint]model.RegistrationApplication
	cooperatives  map[uint]model.Cooperative
	types         map[uint]model.CooperativeType
	notifications map[uint]model.Notification
}

func newState() *state {
	return &state{
		tenants:       map[uint]model.Tenant{},
		users:         map[string]model.User{},
		roles:         map[uint]model.UserRole{},
		accounts:      map[string]model.Account{},
		applications:  map[uint]model.RegistrationApplication{},
		cooperatives:  map[uint]model.Cooperative{},
		types:         map[uint]model.CooperativeType{},
		notifications: map[uint]model.Notification{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		nextID:        s.nextID,
		tenants:       copyMap(s.tenants),
		users:         copyMap(s.users),
		roles:         copyMap(s.roles),
		accounts:      copyMap(s.accounts),
		applications:  copyMap(s.applications),
		cooperatives:  copyMap(s.cooperatives),
		types:         copyMap(s.types),
		notifications: copyMap(s.notifications),
	}
}

// Store is a repository.Store held in memory. The zero value is not usable;
// call New.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]*failure
	hooks    map[string]func()
	now      func() time.Time
}

func New() *Store {
	return &Store{
		st:       newState(),
		failures: map[string]*failure{},
		hooks:    map[string]func(){},
		now:      time.Now,
	}
}

// FailOn makes the named method return err. times <= 0 fails every call.
func (s *Store) FailOn(method string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = &failure{err: err, remaining: times}
}

// OnCall runs fn before every call of the named method.
func (s *Store) OnCall(method string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[method] = fn
}

// enter runs the hook for method, then locks the store and returns the
// injected failure, if any. Callers must defer s.mu.Unlock().
func (s *Store) enter(method string) error {
	s.mu.Lock()
	hook := s.hooks[method]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	f, ok := s.failures[method]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.failures, method)
		}
	}
	return f.err
}

func (s *Store) id() uint {
	s.st.nextID++
	return s.st.nextID
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Seeding and inspection helpers.

func (s *Store) AddTenant(t model.Tenant) model.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.st.tenants[t.ID] = t
	return t
}

func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Roles = nil
	u.Tenant = nil
	s.st.users[u.ID] = u
	return u
}

func (s *Store) AddRole(r model.UserRole) model.UserRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	if r.State == "" {
		r.State = model.RoleActive
	}
	s.st.roles[r.ID] = r
	return r
}

func (s *Store) AddAccount(a model.Account) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[a.ID] = a
	return a
}

func (s *Store) AddApplication(a model.RegistrationApplication) model.RegistrationApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.st.applications[a.ID] = a
	return a
}

func (s *Store) AddCooperative(c model.Cooperative) model.Cooperative {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.st.cooperatives[c.ID] = c
	return c
}

func (s *Store) AddCooperativeType(t model.CooperativeType) model.CooperativeType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.st.types[t.ID] = t
	return t
}

// SetApplicationStatus overwrites a status outside of any workflow rule.
func (s *Store) SetApplicationStatus(id uint, status model.ApplicationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app := s.st.applications[id]
	app.Status = status
	s.st.applications[id] = app
}

func (s *Store) Application(id uint) model.RegistrationApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.applications[id]
}

func (s *Store) User(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	return u, ok
}

func (s *Store) Accounts() []model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return values(s.st.accounts, func(a, b model.Account) bool { return a.Email < b.Email })
}

func (s *Store) Roles() []model.UserRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return values(s.st.roles, func(a, b model.UserRole) bool { return a.ID < b.ID })
}

func (s *Store) Cooperatives() []model.Cooperative {
	s.mu.Lock()
	defer s.mu.Unlock()
	return values(s.st.cooperatives, func(a, b model.Cooperative) bool { return a.ID < b.ID })
}

func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return values(s.st.notifications, func(a, b model.Notification) bool { return a.ID < b.ID })
}

func values[K comparable, V any](m map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func window[T any](rows []T, page repository.Page) []T {
	if page.Offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return rows[page.Offset:end]
}

// hydrate attaches tenant and roles the way the gorm preloads do.
func (s *Store) hydrate(u model.User) model.User {
	if t, ok := s.st.tenants[u.TenantID]; ok {
		u.Tenant = &t
	}
	u.Roles = nil
	for _, r := range s.st.roles {
		if r.UserID != u.ID {
			continue
		}
		if t, ok := s.st.tenants[r.TenantID]; ok {
			r.Tenant = &t
		}
		u.Roles = append(u.Roles, r)
	}
	sort.Slice(u.Roles, func(i, j int) bool { return u.Roles[i].AssignedAt.After(u.Roles[j].AssignedAt) })
	return u
}

func (s *Store) ListUsers(_ context.Context, f repository.UserFilter, page repository.Page) ([]model.User, int64, error) {
	if err := s.enter("ListUsers"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()

	var rows []model.User
	for _, u := range s.st.users {
		if f.TenantID != nil && u.TenantID != *f.TenantID {
			continue
		}
		if f.Search != "" && !contains(u.FullName, f.Search) && !contains(u.Email, f.Search) && !contains(u.IDNumber, f.Search) {
			continue
		}
		u = s.hydrate(u)
		if f.Role != "" {
			held := false
			for _, r := range u.Roles {
				if r.Role == f.Role && r.Active() {
					held = true
				}
			}
			if !held {
				continue
			}
		}
		rows = append(rows, u)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	return window(rows, page), int64(len(rows)), nil
}

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	if err := s.enter("GetUser"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u = s.hydrate(u)
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	if err := s.enter("CreateUser"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.st.users[user.ID]; ok {
		return fmt.Errorf("%w: users_pkey", repository.ErrDuplicate)
	}
	for _, u := range s.st.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: idx_users_email", repository.ErrDuplicate)
		}
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	stored.Roles, stored.Tenant = nil, nil
	s.st.users[user.ID] = stored
	return nil
}

func (s *Store) UpdateUser(_ context.Context, id string, patch model.UserPatch) (int64, error) {
	if err := s.enter("UpdateUser"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return 0, nil
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.IDNumber != nil {
		u.IDNumber = *patch.IDNumber
	}
	if patch.TenantID != nil {
		u.TenantID = *patch.TenantID
	}
	u.UpdatedAt = s.now()
	s.st.users[id] = u
	return 1, nil
}

func (s *Store) CreateRole(_ context.Context, role *model.UserRole) error {
	if err := s.enter("CreateRole"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	for _, r := range s.st.roles {
		if r.UserID == role.UserID && r.TenantID == role.TenantID && r.Role == role.Role {
			return fmt.Errorf("%w: idx_user_roles_assignment", repository.ErrDuplicate)
		}
	}
	role.ID = s.id()
	stored := *role
	stored.Tenant = nil
	s.st.roles[role.ID] = stored
	return nil
}

func (s *Store) UpsertRole(_ context.Context, role *model.UserRole) error {
	if err := s.enter("UpsertRole"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	role.State = model.RoleActive
	for id, r := range s.st.roles {
		if r.UserID == role.UserID && r.TenantID == role.TenantID && r.Role == role.Role {
			r.State = model.RoleActive
			r.AssignedAt = role.AssignedAt
			r.AssignedBy = role.AssignedBy
			s.st.roles[id] = r
			role.ID = id
			return nil
		}
	}
	role.ID = s.id()
	stored := *role
	stored.Tenant = nil
	s.st.roles[role.ID] = stored
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID uint) (*model.UserRole, error) {
	if err := s.enter("GetRole"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	r, ok := s.st.roles[roleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t, ok := s.st.tenants[r.TenantID]; ok {
		r.Tenant = &t
	}
	return &r, nil
}

func (s *Store) SetRoleState(_ context.Context, roleID uint, state model.RoleState) (int64, error) {
	if err := s.enter("SetRoleState"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	r, ok := s.st.roles[roleID]
	if !ok {
		return 0, nil
	}
	r.State = state
	s.st.roles[roleID] = r
	return 1, nil
}

func (s *Store) SetUserRolesState(_ context.Context, userID string, state model.RoleState) (int64, error) {
	if err := s.enter("SetUserRolesState"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.st.roles {
		if r.UserID == userID {
			r.State = state
			s.st.roles[id] = r
			n++
		}
	}
	return n, nil
}

func (s *Store) ActiveRoles(_ context.Context, userID string) ([]model.UserRole, error) {
	if err := s.enter("ActiveRoles"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var out []model.UserRole
	for _, r := range s.st.roles {
		if r.UserID == userID && r.Active() {
			if t, ok := s.st.tenants[r.TenantID]; ok {
				r.Tenant = &t
			}
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

func (s *Store) ListTenants(_ context.Context, activeOnly bool) ([]model.Tenant, error) {
	if err := s.enter("ListTenants"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var out []model.Tenant
	for _, t := range s.st.tenants {
		if activeOnly && !t.Active {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetTenant(_ context.Context, id uint) (*model.Tenant, error) {
	if err := s.enter("GetTenant"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	t, ok := s.st.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *Store) CreateAccount(_ context.Context, account *model.Account) error {
	if err := s.enter("CreateAccount"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	for _, a := range s.st.accounts {
		if a.Email == account.Email {
			return fmt.Errorf("%w: idx_accounts_email", repository.ErrDuplicate)
		}
	}
	now := s.now()
	account.CreatedAt, account.UpdatedAt = now, now
	s.st.accounts[account.ID] = *account
	return nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	if err := s.enter("GetAccountByEmail"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	for _, a := range s.st.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	if err := s.enter("DeleteAccount"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	delete(s.st.accounts, id)
	return nil
}

func (s *Store) hydrateApplication(a model.RegistrationApplication) model.RegistrationApplication {
	if t, ok := s.st.tenants[a.TenantID]; ok {
		a.Tenant = &t
	}
	if ct, ok := s.st.types[a.CooperativeTypeID]; ok {
		a.CooperativeType = &ct
	}
	return a
}

// submittedBefore orders by submitted_at DESC NULLS LAST, then created_at DESC,
// then id DESC.
func submittedBefore(a, b model.RegistrationApplication) bool {
	switch {
	case a.SubmittedAt != nil && b.SubmittedAt == nil:
		return true
	case a.SubmittedAt == nil && b.SubmittedAt != nil:
		return false
	case a.SubmittedAt != nil && !a.SubmittedAt.Equal(*b.SubmittedAt):
		return a.SubmittedAt.After(*b.SubmittedAt)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (s *Store) ListApplications(_ context.Context, f repository.ApplicationFilter, page repository.Page) ([]model.RegistrationApplication, int64, error) {
	if err := s.enter("ListApplications"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()

	var rows []model.RegistrationApplication
	for _, a := range s.st.applications {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.TenantID != nil && a.TenantID != *f.TenantID {
			continue
		}
		if f.CooperativeTypeID != nil && a.CooperativeTypeID != *f.CooperativeTypeID {
			continue
		}
		if f.Search != "" && !contains(a.ApplicationNumber, f.Search) && !contains(a.ProposedName, f.Search) {
			continue
		}
		rows = append(rows, s.hydrateApplication(a))
	}
	sort.SliceStable(rows, func(i, j int) bool { return submittedBefore(rows[i], rows[j]) })
	return window(rows, page), int64(len(rows)), nil
}

func (s *Store) GetApplication(_ context.Context, id uint) (*model.RegistrationApplication, error) {
	if err := s.enter("GetApplication"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	a, ok := s.st.applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a = s.hydrateApplication(a)
	return &a, nil
}

func (s *Store) TransitionApplication(_ context.Context, id uint, from []model.ApplicationStatus, patch model.ApplicationTransition) (int64, error) {
	if err := s.enter("TransitionApplication"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	a, ok := s.st.applications[id]
	if !ok {
		return 0, nil
	}
	if len(from) > 0 {
		allowed := false
		for _, st := range from {
			if a.Status == st {
				allowed = true
			}
		}
		if !allowed {
			return 0, nil
		}
	}
	patch.Apply(&a)
	a.UpdatedAt = s.now()
	s.st.applications[id] = a
	return 1, nil
}

func (s *Store) CountPendingByTenant(_ context.Context) (map[uint]int64, error) {
	if err := s.enter("CountPendingByTenant"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	counts := map[uint]int64{}
	for _, a := range s.st.applications {
		if a.Status.Actionable() {
			counts[a.TenantID]++
		}
	}
	return counts, nil
}

func (s *Store) CountRegistrationsWithPrefix(_ context.Context, tenantID uint, prefix string) (int64, error) {
	if err := s.enter("CountRegistrationsWithPrefix"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	var n int64
	for _, c := range s.st.cooperatives {
		if c.TenantID == tenantID && strings.HasPrefix(c.RegistrationNumber, prefix) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateCooperative(_ context.Context, coop *model.Cooperative) error {
	if err := s.enter("CreateCooperative"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	for _, c := range s.st.cooperatives {
		if c.TenantID == coop.TenantID && c.RegistrationNumber == coop.RegistrationNumber {
			return fmt.Errorf("%w: idx_cooperatives_tenant_regno", repository.ErrDuplicate)
		}
		if c.ApplicationID == coop.ApplicationID {
			return fmt.Errorf("%w: idx_cooperatives_application_id", repository.ErrDuplicate)
		}
	}
	coop.ID = s.id()
	now := s.now()
	coop.CreatedAt, coop.UpdatedAt = now, now
	s.st.cooperatives[coop.ID] = *coop
	return nil
}

func (s *Store) ListCooperativeTypes(_ context.Context) ([]model.CooperativeType, error) {
	if err := s.enter("ListCooperativeTypes"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	return values(s.st.types, func(a, b model.CooperativeType) bool { return a.Name < b.Name }), nil
}

func (s *Store) CreateNotification(_ context.Context, n *model.Notification) error {
	if err := s.enter("CreateNotification"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	n.ID = s.id()
	n.CreatedAt = s.now()
	s.st.notifications[n.ID] = *n
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if err := s.enter("ListNotifications"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var out []model.Notification
	for _, n := range s.st.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return window(out, repository.Page{Limit: limit}), nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID string, id uint) (int64, error) {
	if err := s.enter("MarkNotificationRead"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	n, ok := s.st.notifications[id]
	if !ok || n.UserID != userID {
		return 0, nil
	}
	n.IsRead = true
	s.st.notifications[id] = n
	return 1, nil
}

var _ repository.Store = (*Store)(nil)
