package service

import (
	"context"
	"testing"
	"time"

	"quotecrm/internal/cache"
	"quotecrm/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taxFixture struct {
	clients  *fakeClientRepo
	taxes    *fakeTaxRepo
	settings *fakeSettingsRepo

	country     *model.Country
	framework   *model.TaxFramework
	maharashtra *model.Jurisdiction
}

// newGSTFixture seeds an India-style GST setup: default country, active GST
// framework, Maharashtra (state code 27) and home state 27.
func newGSTFixture() *taxFixture {
	f := &taxFixture{
		clients:  newFakeClientRepo(),
		taxes:    newFakeTaxRepo(),
		settings: &fakeSettingsRepo{},
	}

	f.country = f.taxes.addCountry(&model.Country{Name: "India", Code: "IN", IsDefault: true})
	f.framework = f.taxes.addFramework(&model.TaxFramework{
		CountryID:     f.country.ID,
		FrameworkType: model.FrameworkGST,
		IsActive:      true,
	})
	f.maharashtra = f.taxes.addJurisdiction(&model.Jurisdiction{
		Name:      "Maharashtra",
		CountryID: f.country.ID,
		StateCode: "27",
		IsActive:  true,
	})
	f.settings.settings = &model.CompanySettings{
		ID:            uuid.New(),
		CompanyName:   "Acme Trading",
		HomeStateCode: "27",
	}
	return f
}

func (f *taxFixture) calculator(c *cache.Cache) TaxCalculator {
	return NewTaxCalculator(f.clients, f.taxes, f.settings, c)
}

func (f *taxFixture) addGSTRate(jurisdictionID, categoryID *uuid.UUID, totalPct int64) *model.TaxRate {
	half := decimal.NewFromInt(totalPct).Div(decimal.NewFromInt(2))
	return f.taxes.addRate(&model.TaxRate{
		JurisdictionID: jurisdictionID,
		TaxFrameworkID: f.framework.ID,
		CategoryID:     categoryID,
		EffectiveFrom:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Components: []model.TaxRateComponent{
			{Name: "CGST", Rate: half},
			{Name: "SGST", Rate: half},
		},
	})
}

func (f *taxFixture) addClient(jurisdictionID *uuid.UUID, stateCode string) *model.Client {
	return f.clients.add(&model.Client{
		Name:           "Test Client",
		CountryID:      &f.country.ID,
		JurisdictionID: jurisdictionID,
		StateCode:      stateCode,
		IsActive:       true,
	})
}

func singleLineInput(clientID uuid.UUID, categoryID *uuid.UUID, amount int64) CalculateTaxInput {
	return CalculateTaxInput{
		ClientID: clientID,
		LineItems: []TaxLineItemInput{
			{LineItemID: "0", CategoryID: categoryID, Amount: decimal.NewFromInt(amount)},
		},
		Subtotal:        decimal.NewFromInt(amount),
		CalculationDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestCalculateTaxIntraStateSplitsCGSTSGST(t *testing.T) {
	f := newGSTFixture()
	f.addGSTRate(nil, nil, 18)
	client := f.addClient(&f.maharashtra.ID, "27")

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 1000))
	require.NoError(t, err)

	require.Len(t, result.LineItems, 1)
	require.Len(t, result.LineItems[0].Components, 2)

	cgst := result.LineItems[0].Components[0]
	sgst := result.LineItems[0].Components[1]
	assert.Equal(t, ComponentCGST, cgst.Component)
	assert.Equal(t, ComponentSGST, sgst.Component)
	assert.Equal(t, "90.00", cgst.Amount.StringFixed(2))
	assert.Equal(t, "90.00", sgst.Amount.StringFixed(2))
	assert.Equal(t, "9.00", cgst.Rate.StringFixed(2))

	assert.Equal(t, "180.00", result.TotalTax.StringFixed(2))
	assert.Equal(t, "1180.00", result.TotalAmount.StringFixed(2))
}

func TestCalculateTaxInterStateUsesIGST(t *testing.T) {
	f := newGSTFixture()
	f.addGSTRate(nil, nil, 18)
	client := f.addClient(nil, "19") // West Bengal, home state is 27

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 1000))
	require.NoError(t, err)

	require.Len(t, result.LineItems, 1)
	require.Len(t, result.LineItems[0].Components, 1)

	igst := result.LineItems[0].Components[0]
	assert.Equal(t, ComponentIGST, igst.Component)
	assert.Equal(t, "18.00", igst.Rate.StringFixed(2))
	assert.Equal(t, "180.00", igst.Amount.StringFixed(2))
	assert.Equal(t, "180.00", result.TotalTax.StringFixed(2))
}

func TestCalculateTaxMissingSettingsAssumesInterState(t *testing.T) {
	f := newGSTFixture()
	f.settings.settings = nil
	f.addGSTRate(nil, nil, 18)
	client := f.addClient(&f.maharashtra.ID, "27")

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 1000))
	require.NoError(t, err)

	require.Len(t, result.LineItems[0].Components, 1)
	assert.Equal(t, ComponentIGST, result.LineItems[0].Components[0].Component)
}

func TestCalculateTaxRateFallbackChain(t *testing.T) {
	electronics := uuid.New()

	tests := []struct {
		name         string
		seed         func(f *taxFixture)
		expectedRate string
	}{
		{
			name: "jurisdiction and category wins",
			seed: func(f *taxFixture) {
				f.addGSTRate(&f.maharashtra.ID, &electronics, 5)
				f.addGSTRate(&f.maharashtra.ID, nil, 12)
				f.addGSTRate(nil, &electronics, 18)
				f.addGSTRate(nil, nil, 28)
			},
			expectedRate: "5.00",
		},
		{
			name: "jurisdiction general before country category",
			seed: func(f *taxFixture) {
				f.addGSTRate(&f.maharashtra.ID, nil, 12)
				f.addGSTRate(nil, &electronics, 18)
				f.addGSTRate(nil, nil, 28)
			},
			expectedRate: "12.00",
		},
		{
			name: "country category before country general",
			seed: func(f *taxFixture) {
				f.addGSTRate(nil, &electronics, 18)
				f.addGSTRate(nil, nil, 28)
			},
			expectedRate: "18.00",
		},
		{
			name: "country general as last resort",
			seed: func(f *taxFixture) {
				f.addGSTRate(nil, nil, 28)
			},
			expectedRate: "28.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGSTFixture()
			tt.seed(f)
			client := f.addClient(&f.maharashtra.ID, "19") // inter-state: single IGST component

			result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, &electronics, 100))
			require.NoError(t, err)
			require.Len(t, result.LineItems[0].Components, 1)
			assert.Equal(t, tt.expectedRate, result.LineItems[0].Components[0].Rate.StringFixed(2))
		})
	}
}

func TestCalculateTaxWalksParentJurisdiction(t *testing.T) {
	f := newGSTFixture()
	pune := f.taxes.addJurisdiction(&model.Jurisdiction{
		Name:      "Pune",
		CountryID: f.country.ID,
		ParentID:  &f.maharashtra.ID,
		IsActive:  true,
	})
	f.addGSTRate(&f.maharashtra.ID, nil, 18) // rate lives on the parent
	client := f.addClient(&pune.ID, "19")

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 1000))
	require.NoError(t, err)
	assert.Equal(t, "180.00", result.TotalTax.StringFixed(2))
}

func TestCalculateTaxExemptRateYieldsZeroTax(t *testing.T) {
	f := newGSTFixture()
	f.taxes.addRate(&model.TaxRate{
		TaxFrameworkID: f.framework.ID,
		EffectiveFrom:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		IsExempt:       true,
		Components:     []model.TaxRateComponent{{Name: "CGST", Rate: decimal.NewFromInt(9)}},
	})
	client := f.addClient(nil, "27")

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 1000))
	require.NoError(t, err)

	assert.True(t, result.TotalTax.IsZero())
	assert.Empty(t, result.LineItems[0].Components)
	assert.Equal(t, "1000.00", result.TotalAmount.StringFixed(2))
}

func TestCalculateTaxNoRateFoundIsNotAnError(t *testing.T) {
	f := newGSTFixture()
	client := f.addClient(&f.maharashtra.ID, "27")

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 1000))
	require.NoError(t, err)

	require.Len(t, result.LineItems, 1)
	assert.True(t, result.TotalTax.IsZero())
	assert.True(t, result.LineItems[0].TaxAmount.IsZero())
}

func TestCalculateTaxNonGSTBillsStoredComponents(t *testing.T) {
	f := newGSTFixture()
	uk := f.taxes.addCountry(&model.Country{Name: "United Kingdom", Code: "GB"})
	vat := f.taxes.addFramework(&model.TaxFramework{
		CountryID:     uk.ID,
		FrameworkType: model.FrameworkVAT,
		IsActive:      true,
	})
	f.taxes.addRate(&model.TaxRate{
		TaxFrameworkID: vat.ID,
		EffectiveFrom:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Components:     []model.TaxRateComponent{{Name: "VAT", Rate: decimal.NewFromInt(20)}},
	})
	client := f.clients.add(&model.Client{Name: "UK Client", CountryID: &uk.ID})

	result, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 500))
	require.NoError(t, err)

	require.Len(t, result.LineItems[0].Components, 1)
	comp := result.LineItems[0].Components[0]
	assert.Equal(t, "VAT", comp.Component)
	assert.Equal(t, "100.00", comp.Amount.StringFixed(2))
}

func TestCalculateTaxAggregatesComponentsAcrossLines(t *testing.T) {
	f := newGSTFixture()
	f.addGSTRate(nil, nil, 18)
	client := f.addClient(&f.maharashtra.ID, "27")

	input := CalculateTaxInput{
		ClientID: client.ID,
		LineItems: []TaxLineItemInput{
			{LineItemID: "0", Amount: decimal.NewFromInt(1000)},
			{LineItemID: "1", Amount: decimal.NewFromInt(500)},
		},
		Subtotal:        decimal.NewFromInt(1500),
		CalculationDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	}

	result, err := f.calculator(nil).CalculateTax(context.Background(), input)
	require.NoError(t, err)

	// CGST and SGST each aggregate 90 + 45 across the two lines
	require.Len(t, result.TaxBreakdown, 2)
	assert.Equal(t, "135.00", result.TaxBreakdown[0].Amount.StringFixed(2))
	assert.Equal(t, "135.00", result.TaxBreakdown[1].Amount.StringFixed(2))
	assert.Equal(t, "270.00", result.TotalTax.StringFixed(2))
}

func TestCalculateTaxUsesRateCache(t *testing.T) {
	f := newGSTFixture()
	f.addGSTRate(&f.maharashtra.ID, nil, 18)
	client := f.addClient(&f.maharashtra.ID, "27")

	calc := f.calculator(cache.New())
	input := singleLineInput(client.ID, nil, 1000)

	_, err := calc.CalculateTax(context.Background(), input)
	require.NoError(t, err)
	callsAfterFirst := f.taxes.findRateCalls
	require.Greater(t, callsAfterFirst, 0)

	_, err = calc.CalculateTax(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, f.taxes.findRateCalls, "second calculation should be served from cache")
}

func TestCalculateTaxUnknownClient(t *testing.T) {
	f := newGSTFixture()

	_, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(uuid.New(), nil, 100))
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestCalculateTaxNoFrameworkForCountry(t *testing.T) {
	f := newGSTFixture()
	bare := f.taxes.addCountry(&model.Country{Name: "Atlantis", Code: "AT"})
	client := f.clients.add(&model.Client{Name: "Atlantis Client", CountryID: &bare.ID})

	_, err := f.calculator(nil).CalculateTax(context.Background(), singleLineInput(client.ID, nil, 100))
	assert.ErrorIs(t, err, ErrNoTaxFramework)
}
