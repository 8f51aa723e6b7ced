// Package registry answers read queries over registration applications:
// the paginated review queue and the application detail view.
package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository"
	"github.com/suteetoe/coopregistry/pkg/errs"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// StatusAll disables the status filter.
	StatusAll = "ALL"
)

// Store is the persistence the registry needs.
type Store interface {
	repository.ApplicationRepository
	repository.CooperativeTypeRepository
}

// URLSigner issues time-limited document links.
type URLSigner interface {
	SignedURL(path string) (string, error)
}

type Service struct {
	store  Store
	signer URLSigner
}

func NewService(store Store, signer URLSigner) *Service {
	return &Service{store: store, signer: signer}
}

// Filter narrows ListApplications. Status is a status name, ALL or empty.
type Filter struct {
	Status            string
	TenantID          *uint
	CooperativeTypeID *uint
	Search            string
}

type Page struct {
	Applications []model.RegistrationApplication `json:"applications"`
	TotalCount   int64                           `json:"total_count"`
	TotalPages   int                             `json:"total_pages"`
	Page         int                             `json:"page"`
	PageSize     int                             `json:"page_size"`
}

// Document is one supporting document of an application. URL is nil when
// the document was never uploaded or its link could not be issued.
type Document struct {
	Kind     model.DocumentKind `json:"kind"`
	Path     string             `json:"path,omitempty"`
	URL      *string            `json:"url"`
	Uploaded bool               `json:"uploaded"`
}

type Detail struct {
	Application *model.RegistrationApplication `json:"application"`
	Documents   []Document                     `json:"documents"`
}

func totalPages(total int64, pageSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// scope pins tenant-scoped callers to their own tenant.
func scope(caller model.Principal, requested *uint) *uint {
	if caller.Role.TenantScoped() {
		tenantID := caller.TenantID
		return &tenantID
	}
	return requested
}

// ListApplications returns one page of applications visible to caller,
// newest submission first with unsubmitted drafts last.
func (s *Service) ListApplications(ctx context.Context, caller model.Principal, f Filter, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filter := repository.ApplicationFilter{
		TenantID:          scope(caller, f.TenantID),
		CooperativeTypeID: f.CooperativeTypeID,
		Search:            strings.TrimSpace(f.Search),
	}
	if status := strings.ToUpper(strings.TrimSpace(f.Status)); status != "" && status != StatusAll {
		parsed, ok := model.ParseApplicationStatus(status)
		if !ok {
			return nil, errs.Validation("Unknown status filter: " + f.Status)
		}
		filter.Status = parsed
	}

	apps, total, err := s.store.ListApplications(ctx, filter, repository.Page{
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, errs.Internal("Failed to load applications", err)
	}

	return &Page{
		Applications: apps,
		TotalCount:   total,
		TotalPages:   totalPages(total, pageSize),
		Page:         page,
		PageSize:     pageSize,
	}, nil
}

// GetApplication returns one application with links to its documents.
// Applications outside a tenant-scoped caller's tenant are reported as
// not found.
func (s *Service) GetApplication(ctx context.Context, caller model.Principal, id uint) (*Detail, error) {
	app, err := s.store.GetApplication(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("Application not found")
	}
	if err != nil {
		return nil, errs.Internal("Failed to load application", err)
	}
	if caller.Role.TenantScoped() && app.TenantID != caller.TenantID {
		return nil, errs.NotFound("Application not found")
	}

	log := logger.FromContext(ctx)
	var docs []Document
	for _, d := range app.DocumentPaths() {
		doc := Document{Kind: d.Kind, Path: d.Path, Uploaded: d.Path != ""}
		if doc.Uploaded {
			if url, err := s.signer.SignedURL(d.Path); err != nil {
				log.Warn("Failed to sign document URL",
					zap.Uint("application_id", app.ID),
					zap.String("kind", string(d.Kind)),
					zap.Error(err))
			} else {
				doc.URL = &url
			}
		}
		docs = append(docs, doc)
	}

	return &Detail{Application: app, Documents: docs}, nil
}

func (s *Service) ListCooperativeTypes(ctx context.Context) ([]model.CooperativeType, error) {
	types, err := s.store.ListCooperativeTypes(ctx)
	if err != nil {
		return nil, errs.Internal("Failed to load cooperative types", err)
	}
	return types, nil
}
