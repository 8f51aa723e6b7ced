package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/coopregistry/internal/directory"
	"github.com/suteetoe/coopregistry/internal/middleware"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/registry"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"github.com/suteetoe/coopregistry/pkg/jwtutil"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

type Directory interface {
	ListUsers(ctx context.Context, caller model.Principal, f directory.UserFilter, page, pageSize int) (*directory.UserPage, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	CreateUser(ctx context.Context, actorID string, in directory.NewUser) (*directory.CreatedUser, error)
	UpdateUser(ctx context.Context, userID string, patch model.UserPatch) error
	DeactivateUser(ctx context.Context, userID string) error
	AssignRole(ctx context.Context, actorID, userID string, role model.Role, tenantID uint) (*model.UserRole, error)
	GetRole(ctx context.Context, roleID uint) (*model.UserRole, error)
	RemoveRole(ctx context.Context, roleID uint) error
	ListTenants(ctx context.Context) ([]model.Tenant, error)
	ActiveRoles(ctx context.Context, userID string) ([]model.UserRole, error)
}

type Registry interface {
	ListApplications(ctx context.Context, caller model.Principal, f registry.Filter, page, pageSize int) (*registry.Page, error)
	GetApplication(ctx context.Context, caller model.Principal, id uint) (*registry.Detail, error)
	ListCooperativeTypes(ctx context.Context) ([]model.CooperativeType, error)
}

type Workflow interface {
	Approve(ctx context.Context, actorID string, applicationID uint) (*model.Cooperative, error)
	Reject(ctx context.Context, actorID string, applicationID uint, reason string) (*model.RegistrationApplication, error)
	RequestInfo(ctx context.Context, actorID string, applicationID uint, notes string) (*model.RegistrationApplication, error)
	StartReview(ctx context.Context, actorID string, applicationID uint) (*model.RegistrationApplication, error)
}

type Notifications interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID string, id uint) (bool, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
}

type Documents interface {
	Verify(path, token string) error
	Resolve(path string) (string, error)
}

// Handlers holds the services behind the HTTP API.
type Handlers struct {
	ServiceName   string
	Directory     Directory
	Registry      Registry
	Workflow      Workflow
	Notifications Notifications
	Auth          Authenticator
	Documents     Documents
	JWT           *jwtutil.JWTUtil
}

// RegisterRoutes mounts every route on e.
func RegisterRoutes(e *echo.Echo, h *Handlers) {
	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))

	e.POST("/auth/login", h.Login)
	e.GET("/files/*", h.ServeDocument)

	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(h.JWT, h.Directory))

	admins := middleware.RequireRole(model.RoleSuperAdmin, model.RoleCountyAdmin)
	staff := middleware.RequireRole(model.RoleSuperAdmin, model.RoleCountyAdmin, model.RoleCountyOfficer, model.RoleAuditor)

	users := api.Group("/users", admins)
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.GET("/:id", h.GetUser)
	users.PATCH("/:id", h.UpdateUser)
	users.POST("/:id/deactivate", h.DeactivateUser)
	users.POST("/:id/roles", h.AssignRole)
	api.DELETE("/roles/:id", h.RemoveRole, admins)
	api.GET("/tenants", h.ListTenants, admins)

	apps := api.Group("/applications")
	apps.GET("", h.ListApplications, staff)
	apps.GET("/:id", h.GetApplication, staff)
	apps.POST("/:id/review", h.StartReview, admins)
	apps.POST("/:id/approve", h.Approve, admins)
	apps.POST("/:id/reject", h.Reject, admins)
	apps.POST("/:id/request-info", h.RequestInfo, admins)
	api.GET("/cooperative-types", h.ListCooperativeTypes)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
}

// writeError renders err as {"error": message} with the status of its kind.
func writeError(c echo.Context, err error, msg string, fields ...zap.Field) error {
	log := logger.FromEcho(c)
	fields = append(fields, zap.Error(err))

	status := errs.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, fields...)
		prometheus.RecordError(errs.KindOf(err).String())
	} else {
		log.Warn(msg, fields...)
	}
	return c.JSON(status, echo.Map{"error": errs.Message(err)})
}

func principal(c echo.Context) (model.Principal, error) {
	p, ok := middleware.CurrentUser(c)
	if !ok {
		return model.Principal{}, errs.ErrNotAuthenticated
	}
	return p, nil
}

func idParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Validation("Invalid id")
	}
	return uint(id), nil
}

func intQuery(c echo.Context, name string, fallback int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		return v
	}
	return fallback
}

func uintQuery(c echo.Context, name string) (*uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, errs.Validation("Invalid " + name)
	}
	out := uint(v)
	return &out, nil
}

// HealthCheck handles the health check endpoint
func (h *Handlers) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": h.ServiceName,
	})
}
