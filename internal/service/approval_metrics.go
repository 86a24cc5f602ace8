package service

import (
	"context"
	"fmt"
	"time"

	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/shopspring/decimal"
)

// ApprovalMetrics summarizes approval throughput over a period.
// RejectionRate is rejected / resolved; AverageApprovalHours is the mean
// turnaround of resolved approvals.
type ApprovalMetrics struct {
	PendingCount         int     `json:"pending_count"`
	ApprovedCount        int     `json:"approved_count"`
	RejectedCount        int     `json:"rejected_count"`
	AverageApprovalHours float64 `json:"average_approval_hours"`
	RejectionRate        float64 `json:"rejection_rate"`
	AverageDiscountPct   string  `json:"average_discount_pct"`
	EscalationCount      int     `json:"escalation_count"`
}

type ApprovalMetricsService interface {
	GetMetrics(ctx context.Context, filter repository.MetricsFilter) (ApprovalMetrics, error)
}

type approvalMetricsService struct {
	approvals repository.ApprovalRepository
}

func NewApprovalMetricsService(approvals repository.ApprovalRepository) ApprovalMetricsService {
	return &approvalMetricsService{approvals: approvals}
}

func (s *approvalMetricsService) GetMetrics(ctx context.Context, filter repository.MetricsFilter) (ApprovalMetrics, error) {
	approvals, err := s.approvals.ListForMetrics(ctx, filter)
	if err != nil {
		return ApprovalMetrics{}, fmt.Errorf("failed to fetch approvals for metrics: %w", err)
	}

	var metrics ApprovalMetrics
	var totalTurnaround time.Duration
	resolvedWithTimes := 0
	discountSum := decimal.Zero

	for _, a := range approvals {
		discountSum = discountSum.Add(a.RequestedDiscountPct)
		if a.EscalatedToAdmin {
			metrics.EscalationCount++
		}

		switch a.Status {
		case model.ApprovalPending:
			metrics.PendingCount++
		case model.ApprovalApproved:
			metrics.ApprovedCount++
			if a.ApprovalDate != nil {
				totalTurnaround += a.ApprovalDate.Sub(a.RequestDate)
				resolvedWithTimes++
			}
		case model.ApprovalRejected:
			metrics.RejectedCount++
			if a.RejectionDate != nil {
				totalTurnaround += a.RejectionDate.Sub(a.RequestDate)
				resolvedWithTimes++
			}
		}
	}

	if resolvedWithTimes > 0 {
		metrics.AverageApprovalHours = totalTurnaround.Hours() / float64(resolvedWithTimes)
	}
	if resolved := metrics.ApprovedCount + metrics.RejectedCount; resolved > 0 {
		metrics.RejectionRate = float64(metrics.RejectedCount) / float64(resolved)
	}
	if len(approvals) > 0 {
		metrics.AverageDiscountPct = discountSum.Div(decimal.NewFromInt(int64(len(approvals)))).StringFixed(2)
	} else {
		metrics.AverageDiscountPct = "0.00"
	}

	return metrics, nil
}
