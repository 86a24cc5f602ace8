package service

import (
	"context"
	"testing"
	"time"

	"quotecrm/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type approvalFixture struct {
	approvals  *fakeApprovalRepo
	quotations *fakeQuotationRepo
	audits     *fakeAuditRepo
	svc        DiscountApprovalService
	quotation  *model.Quotation
}

func newApprovalFixture() *approvalFixture {
	f := &approvalFixture{
		approvals:  newFakeApprovalRepo(),
		quotations: newFakeQuotationRepo(),
		audits:     &fakeAuditRepo{},
	}
	f.svc = NewDiscountApprovalService(f.approvals, f.quotations, f.audits, &fakeTxManager{}, nil)
	f.quotation = f.quotations.add(&model.Quotation{
		QuoteNumber: "QT-20250615-00001",
		ClientID:    uuid.New(),
		Status:      model.QuotationStatusDraft,
		Subtotal:    decimal.NewFromInt(1000),
		TaxAmount:   decimal.NewFromInt(180),
		TotalAmount: decimal.NewFromInt(1180),
	})
	return f
}

func salesActor() Actor   { return Actor{ID: uuid.New(), Role: model.RoleSales} }
func managerActor() Actor { return Actor{ID: uuid.New(), Role: model.RoleManager} }
func adminActor() Actor   { return Actor{ID: uuid.New(), Role: model.RoleAdmin} }

func (f *approvalFixture) request(t *testing.T, actor Actor, pct string) ApprovalResponse {
	t.Helper()
	resp, err := f.svc.Request(context.Background(), actor, RequestApprovalDTO{
		QuotationID:        f.quotation.ID.String(),
		DiscountPercentage: pct,
		Reason:             "strategic account",
	})
	require.NoError(t, err)
	return resp
}

func TestRequestApprovalBelowThresholdRejected(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.Request(context.Background(), salesActor(), RequestApprovalDTO{
		QuotationID:        f.quotation.ID.String(),
		DiscountPercentage: "9.99",
		Reason:             "small discount",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestApprovalRequiresReason(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.Request(context.Background(), salesActor(), RequestApprovalDTO{
		QuotationID:        f.quotation.ID.String(),
		DiscountPercentage: "15",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestApprovalLevels(t *testing.T) {
	tests := []struct {
		pct   string
		level string
	}{
		{"10.00", model.ApprovalLevelManager},
		{"19.99", model.ApprovalLevelManager},
		{"20.00", model.ApprovalLevelAdmin},
		{"25", model.ApprovalLevelAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.pct, func(t *testing.T) {
			f := newApprovalFixture()
			resp := f.request(t, salesActor(), tt.pct)
			assert.Equal(t, model.ApprovalPending, resp.Status)
			assert.Equal(t, tt.level, resp.ApprovalLevel)
		})
	}
}

func TestRequestApprovalLocksQuotation(t *testing.T) {
	f := newApprovalFixture()
	resp := f.request(t, salesActor(), "15")

	q, err := f.quotations.FindByID(context.Background(), f.quotation.ID)
	require.NoError(t, err)
	assert.True(t, q.IsPendingApproval)
	require.NotNil(t, q.PendingApprovalID)
	assert.Equal(t, resp.ID, q.PendingApprovalID.String())

	require.Len(t, f.audits.entries, 1)
	assert.Equal(t, model.ActionRequestDiscountApproval, f.audits.entries[0].Action)
}

func TestRequestApprovalOnLockedQuotation(t *testing.T) {
	f := newApprovalFixture()
	f.request(t, salesActor(), "15")

	_, err := f.svc.Request(context.Background(), salesActor(), RequestApprovalDTO{
		QuotationID:        f.quotation.ID.String(),
		DiscountPercentage: "12",
		Reason:             "second attempt",
	})
	assert.ErrorIs(t, err, ErrQuotationLocked)
}

func TestRequestApprovalUnknownQuotation(t *testing.T) {
	f := newApprovalFixture()

	_, err := f.svc.Request(context.Background(), salesActor(), RequestApprovalDTO{
		QuotationID:        uuid.NewString(),
		DiscountPercentage: "15",
		Reason:             "whatever",
	})
	assert.ErrorIs(t, err, ErrQuotationNotFound)
}

func TestApproveWritesDiscountBackAndUnlocks(t *testing.T) {
	f := newApprovalFixture()
	resp := f.request(t, salesActor(), "15")

	manager := managerActor()
	approved, err := f.svc.Approve(context.Background(), manager, resp.ID, "looks fine")
	require.NoError(t, err)

	assert.Equal(t, model.ApprovalApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	assert.Equal(t, manager.ID.String(), *approved.ApproverID)
	assert.NotNil(t, approved.ApprovalDate)

	q, err := f.quotations.FindByID(context.Background(), f.quotation.ID)
	require.NoError(t, err)
	assert.False(t, q.IsPendingApproval)
	assert.Nil(t, q.PendingApprovalID)
	assert.Equal(t, "15.00", q.DiscountPercentage.StringFixed(2))
	assert.Equal(t, "150.00", q.DiscountAmount.StringFixed(2))
	// 1000 - 150 + 180 tax
	assert.Equal(t, "1030.00", q.TotalAmount.StringFixed(2))
}

func TestApproveAuthorization(t *testing.T) {
	tests := []struct {
		name    string
		pct     string
		actor   Actor
		wantErr error
	}{
		{"sales cannot approve", "15", salesActor(), ErrUnauthorized},
		{"manager approves manager level", "15", managerActor(), nil},
		{"manager cannot approve admin level", "25", managerActor(), ErrUnauthorized},
		{"admin approves admin level", "25", adminActor(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newApprovalFixture()
			resp := f.request(t, salesActor(), tt.pct)

			_, err := f.svc.Approve(context.Background(), tt.actor, resp.ID, "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApproveAlreadyResolved(t *testing.T) {
	f := newApprovalFixture()
	resp := f.request(t, salesActor(), "15")

	_, err := f.svc.Approve(context.Background(), managerActor(), resp.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), adminActor(), resp.ID, "")
	assert.ErrorIs(t, err, ErrInvalidApprovalStatus)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newApprovalFixture()
	resp := f.request(t, salesActor(), "15")

	_, err := f.svc.Reject(context.Background(), managerActor(), resp.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectUnlocksWithoutApplyingDiscount(t *testing.T) {
	f := newApprovalFixture()
	resp := f.request(t, salesActor(), "15")

	rejected, err := f.svc.Reject(context.Background(), managerActor(), resp.ID, "margin too thin")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectionDate)

	q, err := f.quotations.FindByID(context.Background(), f.quotation.ID)
	require.NoError(t, err)
	assert.False(t, q.IsPendingApproval)
	assert.True(t, q.DiscountPercentage.IsZero(), "rejected discount must not be applied")
}

func TestEscalateRaisesEffectiveTier(t *testing.T) {
	f := newApprovalFixture()
	resp := f.request(t, salesActor(), "15") // manager level

	_, err := f.svc.Escalate(context.Background(), salesActor(), resp.ID, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	escalated, err := f.svc.Escalate(context.Background(), managerActor(), resp.ID, "needs a second look")
	require.NoError(t, err)
	assert.True(t, escalated.EscalatedToAdmin)
	// Stored level is untouched; only the effective tier changes
	assert.Equal(t, model.ApprovalLevelManager, escalated.ApprovalLevel)

	_, err = f.svc.Escalate(context.Background(), managerActor(), resp.ID, "")
	assert.ErrorIs(t, err, ErrValidation, "double escalation must fail")

	_, err = f.svc.Approve(context.Background(), managerActor(), resp.ID, "")
	assert.ErrorIs(t, err, ErrUnauthorized, "manager cannot resolve an escalated approval")

	_, err = f.svc.Approve(context.Background(), adminActor(), resp.ID, "")
	assert.NoError(t, err)
}

func TestResubmitAfterRejection(t *testing.T) {
	f := newApprovalFixture()
	sales := salesActor()
	first := f.request(t, sales, "15")

	_, err := f.svc.Resubmit(context.Background(), sales, first.ID, RequestApprovalDTO{
		DiscountPercentage: "12",
		Reason:             "retry",
	})
	assert.ErrorIs(t, err, ErrInvalidApprovalStatus, "pending approvals cannot be resubmitted")

	_, err = f.svc.Reject(context.Background(), managerActor(), first.ID, "too high")
	require.NoError(t, err)

	second, err := f.svc.Resubmit(context.Background(), sales, first.ID, RequestApprovalDTO{
		DiscountPercentage: "12",
		Reason:             "lowered the ask",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, second.Status)
	assert.NotEqual(t, first.ID, second.ID, "resubmission opens a fresh record")

	// Rejected record is preserved untouched
	prev, err := f.approvals.FindByID(context.Background(), uuid.MustParse(first.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalRejected, prev.Status)

	q, err := f.quotations.FindByID(context.Background(), f.quotation.ID)
	require.NoError(t, err)
	assert.True(t, q.IsPendingApproval, "quotation relocked by the new request")
}

func TestTimelineMergesAttemptsNewestFirst(t *testing.T) {
	f := newApprovalFixture()
	requester := uuid.New()
	day := func(d int) time.Time { return time.Date(2025, 6, d, 10, 0, 0, 0, time.UTC) }

	rejectedAt := day(2)
	f.approvals.add(&model.DiscountApproval{
		QuotationID:          f.quotation.ID,
		Status:               model.ApprovalRejected,
		ApprovalLevel:        model.ApprovalLevelManager,
		RequestedDiscountPct: decimal.NewFromInt(15),
		RequestedBy:          requester,
		RequestDate:          day(1),
		RejectionDate:        &rejectedAt,
	})
	escalatedAt := day(4)
	f.approvals.add(&model.DiscountApproval{
		QuotationID:          f.quotation.ID,
		Status:               model.ApprovalPending,
		ApprovalLevel:        model.ApprovalLevelManager,
		RequestedDiscountPct: decimal.NewFromInt(12),
		RequestedBy:          requester,
		RequestDate:          day(3),
		EscalatedToAdmin:     true,
		EscalatedAt:          &escalatedAt,
	})

	events, err := f.svc.Timeline(context.Background(), adminActor(), f.quotation.ID.String())
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, TimelineEscalated, events[0].Type)
	assert.Equal(t, TimelineRequested, events[1].Type)
	assert.Equal(t, TimelineRejected, events[2].Type)
	assert.Equal(t, TimelineRequested, events[3].Type)
}

func TestTimelineFiltersUnviewableAttempts(t *testing.T) {
	f := newApprovalFixture()
	f.request(t, salesActor(), "15")

	events, err := f.svc.Timeline(context.Background(), salesActor(), f.quotation.ID.String())
	require.NoError(t, err)
	assert.Empty(t, events, "unrelated sales user sees nothing")
}

func TestGetApprovalVisibility(t *testing.T) {
	f := newApprovalFixture()
	requester := salesActor()
	resp := f.request(t, requester, "15")

	_, err := f.svc.Get(context.Background(), requester, resp.ID)
	assert.NoError(t, err, "requester can view")

	_, err = f.svc.Get(context.Background(), managerActor(), resp.ID)
	assert.NoError(t, err, "manager can view manager-tier approvals")

	_, err = f.svc.Get(context.Background(), salesActor(), resp.ID)
	assert.ErrorIs(t, err, ErrUnauthorized, "unrelated sales user cannot view")
}
