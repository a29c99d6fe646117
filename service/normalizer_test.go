package service

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"dealdesk/domain"
)

func TestNormalizeProfile_CoercesStringlyTypedForm(t *testing.T) {
	got := NormalizeProfile(map[string]any{
		"propertyValue":        "$1,000,000",
		"propertyType":         " single_family ",
		"propertyLocation":     "Phoenix, AZ",
		"downPaymentPercent":   "20",
		"propertyVacant":       "",
		"currentRent":          "2,500/mo",
		"creditScore":          630.0,
		"investmentExperience": "first_time",
		"helpQuery":            "ignored",
	})

	want := domain.BuyerProfile{
		PropertyValue:        domain.Float(1_000_000),
		PropertyType:         domain.String("single_family"),
		PropertyLocation:     domain.String("Phoenix, AZ"),
		DownPaymentPercent:   domain.Float(20),
		CurrentRent:          domain.Float(2500),
		CreditScore:          domain.Float(630),
		InvestmentExperience: domain.String("first_time"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeProfile mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeProfile_MalformedDegradesToNil(t *testing.T) {
	got := NormalizeProfile(map[string]any{
		"propertyValue":        "call me",
		"propertyType":         42.0,
		"downPaymentPercent":   math.NaN(),
		"creditScore":          "1.2.3",
		"currentRent":          []any{1.0},
		"investmentExperience": map[string]any{"level": "pro"},
	})
	assert.Equal(t, domain.BuyerProfile{}, got)

	assert.Equal(t, domain.BuyerProfile{}, NormalizeProfile(nil))
}

func TestNormalizeProfile_OutOfRangeValues(t *testing.T) {
	got := NormalizeProfile(map[string]any{
		"creditScore":        "9000",
		"downPaymentPercent": 120.0,
	})
	assert.Nil(t, got.CreditScore)
	assert.Nil(t, got.DownPaymentPercent)

	got = NormalizeProfile(map[string]any{"downPaymentPercent": 0.0, "creditScore": 300.0})
	assert.Equal(t, 0.0, *got.DownPaymentPercent)
	assert.Equal(t, 300.0, *got.CreditScore)
}

func TestNormalizeProfile_IsAFixedPoint(t *testing.T) {
	inputs := []map[string]any{
		{
			"propertyValue": "750k", "propertyType": "duplex", "propertyLocation": " Austin, TX",
			"downPaymentPercent": "25%", "creditScore": "712", "investmentExperience": "experienced",
		},
		{"creditScore": 5000.0, "propertyVacant": "yes", "currentRent": 1800.0},
		{},
	}
	for _, in := range inputs {
		once := NormalizeProfile(in)
		twice := NormalizeProfile(once.Map())
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("normalization is not idempotent (-once +twice):\n%s", diff)
		}
	}
}

func TestMergeChanges(t *testing.T) {
	form := domain.BuyerProfile{
		CreditScore:        domain.Float(680),
		DownPaymentPercent: domain.Float(20),
		PropertyType:       domain.String("condo"),
	}
	cs := domain.ParameterChangeSet{
		HasChanges:       true,
		CreditScore:      domain.Float(720),
		PropertyLocation: domain.String("Denver, CO"),
	}

	merged := MergeChanges(form, cs)
	assert.Equal(t, 720.0, *merged.CreditScore)
	assert.Equal(t, "Denver, CO", *merged.PropertyLocation)
	assert.Equal(t, "condo", *merged.PropertyType)

	// the input profile is untouched
	assert.Equal(t, 680.0, *form.CreditScore)
	assert.Nil(t, form.PropertyLocation)

	// merged values do not alias the change set
	*cs.CreditScore = 500
	assert.Equal(t, 720.0, *merged.CreditScore)
}
