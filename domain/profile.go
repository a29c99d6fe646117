package domain

// Field names a buyer-profile parameter, using its wire name.
type Field string

const (
	FieldPropertyValue        Field = "propertyValue"
	FieldPropertyType         Field = "propertyType"
	FieldPropertyLocation     Field = "propertyLocation"
	FieldDownPaymentPercent   Field = "downPaymentPercent"
	FieldPropertyVacant       Field = "propertyVacant"
	FieldCurrentRent          Field = "currentRent"
	FieldCreditScore          Field = "creditScore"
	FieldInvestmentExperience Field = "investmentExperience"
)

var fieldLabels = map[Field]string{
	FieldPropertyValue:        "Property Value",
	FieldPropertyType:         "Property Type",
	FieldPropertyLocation:     "Location",
	FieldDownPaymentPercent:   "Down Payment Percentage",
	FieldPropertyVacant:       "Property Vacancy",
	FieldCurrentRent:          "Current Rent",
	FieldCreditScore:          "Credit Score",
	FieldInvestmentExperience: "Investment Experience",
}

// Label returns the human-readable name shown to users.
func (f Field) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

// Known reports whether f is one of the profile fields.
func (f Field) Known() bool {
	_, ok := fieldLabels[f]
	return ok
}

// BuyerProfile is the normalized scoring input. Every field is optional.
type BuyerProfile struct {
	PropertyValue        *float64 `json:"propertyValue"`
	PropertyType         *string  `json:"propertyType"`
	PropertyLocation     *string  `json:"propertyLocation"`
	DownPaymentPercent   *float64 `json:"downPaymentPercent"`
	PropertyVacant       *string  `json:"propertyVacant"`
	CurrentRent          *float64 `json:"currentRent"`
	CreditScore          *float64 `json:"creditScore"`
	InvestmentExperience *string  `json:"investmentExperience"`
}

// Map renders the profile as a loosely typed object, the shape the
// normalizer accepts. Unset fields are present with a nil value.
func (p BuyerProfile) Map() map[string]any {
	m := make(map[string]any, 8)
	putFloat := func(f Field, v *float64) {
		if v == nil {
			m[string(f)] = nil
			return
		}
		m[string(f)] = *v
	}
	putString := func(f Field, v *string) {
		if v == nil {
			m[string(f)] = nil
			return
		}
		m[string(f)] = *v
	}
	putFloat(FieldPropertyValue, p.PropertyValue)
	putString(FieldPropertyType, p.PropertyType)
	putString(FieldPropertyLocation, p.PropertyLocation)
	putFloat(FieldDownPaymentPercent, p.DownPaymentPercent)
	putString(FieldPropertyVacant, p.PropertyVacant)
	putFloat(FieldCurrentRent, p.CurrentRent)
	putFloat(FieldCreditScore, p.CreditScore)
	putString(FieldInvestmentExperience, p.InvestmentExperience)
	return m
}

// Float returns a copy of v, convenient for building profiles in code.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }
