package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository/repotest"
	"github.com/suteetoe/coopregistry/prometheus"
	"go.uber.org/zap"
)

func pending(tenant string) float64 {
	return testutil.ToFloat64(prometheus.PendingApplicationsGauge.With(promclient.Labels{"tenant_id": tenant}))
}

func TestRefreshPendingGauge(t *testing.T) {
	store := repotest.New()
	store.AddApplication(model.RegistrationApplication{TenantID: 1, Status: model.StatusSubmitted})
	store.AddApplication(model.RegistrationApplication{TenantID: 1, Status: model.StatusUnderReview})
	store.AddApplication(model.RegistrationApplication{TenantID: 1, Status: model.StatusApproved})
	store.AddApplication(model.RegistrationApplication{TenantID: 2, Status: model.StatusSubmitted})

	require.NoError(t, RefreshPendingGauge(context.Background(), store, zap.NewNop()))
	assert.Equal(t, float64(2), pending("1"))
	assert.Equal(t, float64(1), pending("2"))
}

func TestRefreshPendingGaugeError(t *testing.T) {
	store := repotest.New()
	store.FailOn("CountPendingByTenant", errors.New("db down"), 0)
	assert.Error(t, RefreshPendingGauge(context.Background(), store, zap.NewNop()))
}

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler(repotest.New(), time.Minute, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.Jobs(), 1)
	require.NoError(t, s.Shutdown())
}
