package service

import (
	"context"
	"sort"
	"time"

	"quotecrm/internal/model"
	"quotecrm/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes backing the service tests. They mirror the
// contracts the gorm implementations honor, including returning
// gorm.ErrRecordNotFound on misses.

type fakeTxManager struct{}

func (f *fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- clients ---

type fakeClientRepo struct {
	clients map[uuid.UUID]*model.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: map[uuid.UUID]*model.Client{}}
}

func (f *fakeClientRepo) add(c *model.Client) *model.Client {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.clients[c.ID] = c
	return c
}

func (f *fakeClientRepo) Create(_ context.Context, client *model.Client) error {
	f.add(client)
	return nil
}

func (f *fakeClientRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClientRepo) List(_ context.Context, _, _ int) ([]model.Client, int64, error) {
	out := make([]model.Client, 0, len(f.clients))
	for _, c := range f.clients {
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (f *fakeClientRepo) Update(_ context.Context, client *model.Client) error {
	f.clients[client.ID] = client
	return nil
}

func (f *fakeClientRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.clients, id)
	return nil
}

// --- tax ---

type fakeTaxRepo struct {
	countries     map[uuid.UUID]*model.Country
	frameworks    map[uuid.UUID]*model.TaxFramework
	jurisdictions map[uuid.UUID]*model.Jurisdiction
	rates         []*model.TaxRate
	findRateCalls int
}

func newFakeTaxRepo() *fakeTaxRepo {
	return &fakeTaxRepo{
		countries:     map[uuid.UUID]*model.Country{},
		frameworks:    map[uuid.UUID]*model.TaxFramework{},
		jurisdictions: map[uuid.UUID]*model.Jurisdiction{},
	}
}

func (f *fakeTaxRepo) addCountry(c *model.Country) *model.Country {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.countries[c.ID] = c
	return c
}

func (f *fakeTaxRepo) addFramework(fw *model.TaxFramework) *model.TaxFramework {
	if fw.ID == uuid.Nil {
		fw.ID = uuid.New()
	}
	f.frameworks[fw.ID] = fw
	return fw
}

func (f *fakeTaxRepo) addJurisdiction(j *model.Jurisdiction) *model.Jurisdiction {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	f.jurisdictions[j.ID] = j
	return j
}

func (f *fakeTaxRepo) addRate(r *model.TaxRate) *model.TaxRate {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.rates = append(f.rates, r)
	return r
}

func (f *fakeTaxRepo) FindCountry(_ context.Context, id uuid.UUID) (*model.Country, error) {
	c, ok := f.countries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeTaxRepo) FindDefaultCountry(_ context.Context) (*model.Country, error) {
	for _, c := range f.countries {
		if c.IsDefault {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTaxRepo) FindActiveFramework(_ context.Context, countryID uuid.UUID) (*model.TaxFramework, error) {
	for _, fw := range f.frameworks {
		if fw.CountryID == countryID && fw.IsActive {
			return fw, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTaxRepo) FindJurisdiction(_ context.Context, id uuid.UUID) (*model.Jurisdiction, error) {
	j, ok := f.jurisdictions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

func (f *fakeTaxRepo) ListJurisdictions(_ context.Context, countryID uuid.UUID) ([]model.Jurisdiction, error) {
	var out []model.Jurisdiction
	for _, j := range f.jurisdictions {
		if j.CountryID == countryID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeTaxRepo) FindRate(_ context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, date time.Time) (*model.TaxRate, error) {
	f.findRateCalls++
	for _, r := range f.rates {
		if r.TaxFrameworkID != frameworkID {
			continue
		}
		if !uuidPtrEqual(r.JurisdictionID, jurisdictionID) || !uuidPtrEqual(r.CategoryID, categoryID) {
			continue
		}
		if r.EffectiveFrom.After(date) {
			continue
		}
		if r.EffectiveTo != nil && r.EffectiveTo.Before(date) {
			continue
		}
		return r, nil
	}
	return nil, nil
}

func (f *fakeTaxRepo) CreateRate(_ context.Context, rate *model.TaxRate) error {
	f.addRate(rate)
	return nil
}

func (f *fakeTaxRepo) UpdateRate(_ context.Context, rate *model.TaxRate) error {
	for i, r := range f.rates {
		if r.ID == rate.ID {
			f.rates[i] = rate
			return nil
		}
	}
	f.rates = append(f.rates, rate)
	return nil
}

func (f *fakeTaxRepo) DeleteRate(_ context.Context, id uuid.UUID) error {
	for i, r := range f.rates {
		if r.ID == id {
			f.rates = append(f.rates[:i], f.rates[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeTaxRepo) FindRateByID(_ context.Context, id uuid.UUID) (*model.TaxRate, error) {
	for _, r := range f.rates {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTaxRepo) ListRates(_ context.Context, _, _ int) ([]model.TaxRate, int64, error) {
	out := make([]model.TaxRate, 0, len(f.rates))
	for _, r := range f.rates {
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

func (f *fakeTaxRepo) CountOverlappingRates(_ context.Context, jurisdictionID *uuid.UUID, frameworkID uuid.UUID, categoryID *uuid.UUID, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error) {
	endOfTime := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	upper := endOfTime
	if to != nil {
		upper = *to
	}

	var count int64
	for _, r := range f.rates {
		if r.TaxFrameworkID != frameworkID {
			continue
		}
		if !uuidPtrEqual(r.JurisdictionID, jurisdictionID) || !uuidPtrEqual(r.CategoryID, categoryID) {
			continue
		}
		if excludeID != nil && r.ID == *excludeID {
			continue
		}
		if r.EffectiveFrom.After(upper) {
			continue
		}
		if r.EffectiveTo != nil && r.EffectiveTo.Before(from) {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeTaxRepo) CreateFramework(_ context.Context, fw *model.TaxFramework) error {
	f.addFramework(fw)
	return nil
}

func (f *fakeTaxRepo) CreateJurisdiction(_ context.Context, j *model.Jurisdiction) error {
	f.addJurisdiction(j)
	return nil
}

func (f *fakeTaxRepo) CreateCountry(_ context.Context, c *model.Country) error {
	f.addCountry(c)
	return nil
}

// --- settings ---

type fakeSettingsRepo struct {
	settings *model.CompanySettings
}

func (f *fakeSettingsRepo) Get(_ context.Context) (*model.CompanySettings, error) {
	if f.settings == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.settings, nil
}

func (f *fakeSettingsRepo) Save(_ context.Context, settings *model.CompanySettings) error {
	if settings.ID == uuid.Nil {
		settings.ID = uuid.New()
	}
	f.settings = settings
	return nil
}

// --- quotations ---

// fakeQuotationRepo keeps items in a side map to mirror gorm semantics:
// saving a quotation with a nil Items slice leaves the item rows alone.
type fakeQuotationRepo struct {
	quotations map[uuid.UUID]*model.Quotation
	items      map[uuid.UUID][]model.QuotationItem
	seq        int64
}

func newFakeQuotationRepo() *fakeQuotationRepo {
	return &fakeQuotationRepo{
		quotations: map[uuid.UUID]*model.Quotation{},
		items:      map[uuid.UUID][]model.QuotationItem{},
	}
}

func (f *fakeQuotationRepo) add(q *model.Quotation) *model.Quotation {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	f.quotations[q.ID] = q
	if q.Items != nil {
		f.items[q.ID] = q.Items
	}
	return q
}

func (f *fakeQuotationRepo) Create(_ context.Context, quotation *model.Quotation) error {
	f.add(quotation)
	return nil
}

func (f *fakeQuotationRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Quotation, error) {
	q, ok := f.quotations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	cp.Items = nil
	return &cp, nil
}

func (f *fakeQuotationRepo) FindByIDWithItems(_ context.Context, id uuid.UUID) (*model.Quotation, error) {
	q, ok := f.quotations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *q
	cp.Items = f.items[id]
	return &cp, nil
}

func (f *fakeQuotationRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeQuotationRepo) Update(_ context.Context, quotation *model.Quotation) error {
	cp := *quotation
	cp.Items = nil
	f.quotations[quotation.ID] = &cp
	return nil
}

func (f *fakeQuotationRepo) SetApprovalLock(_ context.Context, id uuid.UUID, pending bool, approvalID *uuid.UUID) error {
	q, ok := f.quotations[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	q.IsPendingApproval = pending
	q.PendingApprovalID = approvalID
	return nil
}

func (f *fakeQuotationRepo) ReplaceItems(_ context.Context, quotationID uuid.UUID, items []model.QuotationItem) error {
	if _, ok := f.quotations[quotationID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range items {
		items[i].QuotationID = quotationID
	}
	f.items[quotationID] = items
	return nil
}

func (f *fakeQuotationRepo) List(_ context.Context, clientID *uuid.UUID, _, _ int) ([]model.Quotation, int64, error) {
	var out []model.Quotation
	for _, q := range f.quotations {
		if clientID != nil && q.ClientID != *clientID {
			continue
		}
		out = append(out, *q)
	}
	return out, int64(len(out)), nil
}

func (f *fakeQuotationRepo) NextQuoteNumber(_ context.Context, _ string) (int64, error) {
	f.seq++
	return f.seq, nil
}

// --- approvals ---

type fakeApprovalRepo struct {
	approvals map[uuid.UUID]*model.DiscountApproval
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{approvals: map[uuid.UUID]*model.DiscountApproval{}}
}

func (f *fakeApprovalRepo) add(a *model.DiscountApproval) *model.DiscountApproval {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.approvals[a.ID] = a
	return a
}

func (f *fakeApprovalRepo) Create(_ context.Context, approval *model.DiscountApproval) error {
	f.add(approval)
	return nil
}

func (f *fakeApprovalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.DiscountApproval, error) {
	a, ok := f.approvals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeApprovalRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.DiscountApproval, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeApprovalRepo) FindPendingByQuotation(_ context.Context, quotationID uuid.UUID) (*model.DiscountApproval, error) {
	for _, a := range f.approvals {
		if a.QuotationID == quotationID && a.Status == model.ApprovalPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeApprovalRepo) ListByQuotation(_ context.Context, quotationID uuid.UUID) ([]model.DiscountApproval, error) {
	var out []model.DiscountApproval
	for _, a := range f.approvals {
		if a.QuotationID == quotationID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out, nil
}

func (f *fakeApprovalRepo) List(_ context.Context, status string, _, _ int) ([]model.DiscountApproval, int64, error) {
	var out []model.DiscountApproval
	for _, a := range f.approvals {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}

func (f *fakeApprovalRepo) ListForMetrics(_ context.Context, filter repository.MetricsFilter) ([]model.DiscountApproval, error) {
	var out []model.DiscountApproval
	for _, a := range f.approvals {
		if filter.DateFrom != nil && a.RequestDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && a.RequestDate.After(*filter.DateTo) {
			continue
		}
		if filter.ApproverID != nil && (a.ApproverID == nil || *a.ApproverID != *filter.ApproverID) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeApprovalRepo) Update(_ context.Context, approval *model.DiscountApproval) error {
	if _, ok := f.approvals[approval.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *approval
	f.approvals[approval.ID] = &cp
	return nil
}

// --- audit ---

type fakeAuditRepo struct {
	entries []*model.AuditLog
}

func (f *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	out := make([]model.AuditLog, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, *e)
	}
	return out, int64(len(out)), nil
}
