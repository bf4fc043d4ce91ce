package cache

import (
	"context"
	"time"

	"gudangku/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.RevenueReport, bool, error)
	Set(ctx context.Context, key string, value *domain.RevenueReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.RevenueReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.RevenueReport, _ time.Duration) error {
	return nil
}
