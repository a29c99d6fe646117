package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk/domain"
)

func TestDetectParameterChanges_CreditCorrection(t *testing.T) {
	cs := DetectParameterChanges("My credit score is actually 720", domain.BuyerProfile{CreditScore: domain.Float(680)})

	assert.True(t, cs.HasChanges)
	assert.False(t, cs.IsHypothetical)
	require.NotNil(t, cs.CreditScore)
	assert.Equal(t, 720.0, *cs.CreditScore)
}

func TestDetectParameterChanges_RelativeCredit(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		current      *float64
		want         *float64
		hypothetical bool
	}{
		{"lower hypothetical", "What if my credit score was 100 points lower?", domain.Float(750), f(650), true},
		{"higher", "my credit could go 50 points higher", domain.Float(700), f(750), false},
		{"no current score", "my credit could go 50 points higher", nil, nil, false},
		{"out of range after delta", "what if my score was 200 points lower", domain.Float(450), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := DetectParameterChanges(tt.message, domain.BuyerProfile{CreditScore: tt.current})
			assertFloatPtr(t, tt.want, cs.CreditScore)
			assert.Equal(t, tt.hypothetical, cs.IsHypothetical)
		})
	}
}

func TestDetectParameterChanges_CreditOutOfRange(t *testing.T) {
	cs := DetectParameterChanges("credit score 900", domain.BuyerProfile{})
	assert.Nil(t, cs.CreditScore)
	assert.False(t, cs.HasChanges)
}

func TestDetectParameterChanges_HypotheticalMarkers(t *testing.T) {
	for _, msg := range []string{
		"What if I had more cash?",
		"Suppose we waited a year",
		"imagine my rent doubled",
		"if I could refinance later",
		"Hypothetically speaking",
		"assuming rates drop",
		"Let's say the deal closes",
		"let’s say it appraises low",
	} {
		assert.True(t, DetectParameterChanges(msg, domain.BuyerProfile{}).IsHypothetical, msg)
	}
	assert.False(t, DetectParameterChanges("I had a question", domain.BuyerProfile{}).IsHypothetical)
}

func TestDetectParameterChanges_DownPayment(t *testing.T) {
	tests := []struct {
		message string
		want    *float64
	}{
		{"I can put 25% down", f(25)},
		{"down payment will be 15%", f(15)},
		{"Let's say I put 30% down", f(30)},
		{"10 percent down is my max", f(10)},
		{"I could do 60% down", nil},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assertFloatPtr(t, tt.want, DetectParameterChanges(tt.message, domain.BuyerProfile{}).DownPaymentPercent)
		})
	}
}

func TestDetectParameterChanges_PropertyValue(t *testing.T) {
	tests := []struct {
		message string
		want    *float64
	}{
		{"The property value is $1,200,000", f(1_200_000)},
		{"Looking at a 450k duplex", f(450_000)},
		{"It's a $650,000 home", f(650_000)},
		{"the place is valued at 825000", f(825_000)},
		{"a $20,000 condo", nil},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assertFloatPtr(t, tt.want, DetectParameterChanges(tt.message, domain.BuyerProfile{}).PropertyValue)
		})
	}
}

func TestDetectParameterChanges_TypeAndExperience(t *testing.T) {
	cs := DetectParameterChanges("It's a single-family home and I'm a first-time investor", domain.BuyerProfile{})
	require.NotNil(t, cs.PropertyType)
	assert.Equal(t, "single_family", *cs.PropertyType)
	require.NotNil(t, cs.InvestmentExperience)
	assert.Equal(t, "first_time", *cs.InvestmentExperience)
	assert.True(t, cs.HasChanges)

	cs = DetectParameterChanges("switching to a town home, I'm pretty experienced", domain.BuyerProfile{})
	assert.Equal(t, "townhouse", *cs.PropertyType)
	assert.Equal(t, "experienced", *cs.InvestmentExperience)
}

func TestDetectParameterChanges_Location(t *testing.T) {
	tests := []struct {
		message string
		want    *string
	}{
		{"property in Los Angeles, California", domain.String("Los Angeles, CA")},
		{"I want a property in Brooklyn, New York", domain.String("Brooklyn, NY")},
		{"We're buying in Phoenix, AZ", domain.String("Phoenix, AZ")},
		{"need a loan for Austin, Texas please", domain.String("Austin, TX")},
		// the loan pattern outranks the bare "in" pattern and keeps the whole word run
		{"need a loan for a duplex in Austin, Texas please", domain.String("a duplex in Austin, TX")},
		{"Scottsdale, Arizona", domain.String("Scottsdale, AZ")},
		{"property in Springfield, zz", nil},
		{"Thanks, that helps!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := DetectParameterChanges(tt.message, domain.BuyerProfile{}).PropertyLocation
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestDetectParameterChanges_NoChanges(t *testing.T) {
	cs := DetectParameterChanges("Thanks, that helps!", domain.BuyerProfile{CreditScore: domain.Float(700)})
	assert.Equal(t, domain.ParameterChangeSet{}, cs)
}

func TestAsksForRecommendations(t *testing.T) {
	assert.True(t, AsksForRecommendations("Can you suggest other lenders?"))
	assert.True(t, AsksForRecommendations("What about Harbor Bank?"))
	assert.True(t, AsksForRecommendations("Any other options"))
	assert.False(t, AsksForRecommendations("ok thanks"))
}

func TestResolveState(t *testing.T) {
	assert.Equal(t, "AZ", resolveState("AZ"))
	assert.Equal(t, "", resolveState("az"))
	assert.Equal(t, "", resolveState("ZZ"))
	assert.Equal(t, "NC", resolveState("North Carolina"))
	assert.Equal(t, "WV", resolveState("West Virginia"))
	assert.Equal(t, "VA", resolveState("Virginia beach"))
	assert.Equal(t, "", resolveState("Narnia"))
}
