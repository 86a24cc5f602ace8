package service

import (
	"context"
	"testing"
	"time"

	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMetricsApproval(repo *fakeApprovalRepo, status string, pct int64, requested time.Time, resolvedAfter time.Duration, approver *uuid.UUID, escalated bool) {
	a := &model.DiscountApproval{
		QuotationID:          uuid.New(),
		Status:               status,
		ApprovalLevel:        model.ApprovalLevelManager,
		RequestedDiscountPct: decimal.NewFromInt(pct),
		RequestedBy:          uuid.New(),
		RequestDate:          requested,
		ApproverID:           approver,
		EscalatedToAdmin:     escalated,
	}
	resolved := requested.Add(resolvedAfter)
	switch status {
	case model.ApprovalApproved:
		a.ApprovalDate = &resolved
	case model.ApprovalRejected:
		a.RejectionDate = &resolved
	}
	repo.add(a)
}

func TestGetMetricsAggregates(t *testing.T) {
	repo := newFakeApprovalRepo()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	seedMetricsApproval(repo, model.ApprovalApproved, 15, base, 2*time.Hour, nil, false)
	seedMetricsApproval(repo, model.ApprovalApproved, 12, base, 4*time.Hour, nil, true)
	seedMetricsApproval(repo, model.ApprovalRejected, 25, base, 6*time.Hour, nil, false)
	seedMetricsApproval(repo, model.ApprovalPending, 20, base, 0, nil, false)

	metrics, err := NewApprovalMetricsService(repo).GetMetrics(context.Background(), repository.MetricsFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.PendingCount)
	assert.Equal(t, 2, metrics.ApprovedCount)
	assert.Equal(t, 1, metrics.RejectedCount)
	assert.Equal(t, 1, metrics.EscalationCount)
	// (2 + 4 + 6) / 3 resolved
	assert.InDelta(t, 4.0, metrics.AverageApprovalHours, 0.001)
	// 1 rejected of 3 resolved
	assert.InDelta(t, 1.0/3.0, metrics.RejectionRate, 0.001)
	// (15 + 12 + 25 + 20) / 4
	assert.Equal(t, "18.00", metrics.AverageDiscountPct)
}

func TestGetMetricsEmpty(t *testing.T) {
	metrics, err := NewApprovalMetricsService(newFakeApprovalRepo()).GetMetrics(context.Background(), repository.MetricsFilter{})
	require.NoError(t, err)

	assert.Zero(t, metrics.PendingCount)
	assert.Zero(t, metrics.AverageApprovalHours)
	assert.Zero(t, metrics.RejectionRate)
	assert.Equal(t, "0.00", metrics.AverageDiscountPct)
}

func TestGetMetricsHonorsFilter(t *testing.T) {
	repo := newFakeApprovalRepo()
	approver := uuid.New()
	june := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	july := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	seedMetricsApproval(repo, model.ApprovalApproved, 15, june, time.Hour, &approver, false)
	seedMetricsApproval(repo, model.ApprovalApproved, 12, july, time.Hour, nil, false)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	metrics, err := NewApprovalMetricsService(repo).GetMetrics(context.Background(), repository.MetricsFilter{
		DateFrom: &from,
		DateTo:   &to,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.ApprovedCount)

	metrics, err = NewApprovalMetricsService(repo).GetMetrics(context.Background(), repository.MetricsFilter{
		ApproverID: &approver,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.ApprovedCount)
	assert.Equal(t, "15.00", metrics.AverageDiscountPct)
}
