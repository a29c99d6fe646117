package service

import (
	"strings"

	"github.com/rotisserie/eris"

	"dealdesk/domain"
)

const missingFieldsPrefix = "Please provide the following information to get lender recommendations: "

// MissingFields returns the required fields p does not carry, in the order
// of required. A field is missing when it is unset, zero or empty, except
// downPaymentPercent where zero is a valid answer.
func MissingFields(p domain.BuyerProfile, required []domain.Field) []domain.Field {
	values := p.Map()
	missing := []domain.Field{}
	for _, f := range required {
		v := values[string(f)]
		if f == domain.FieldDownPaymentPercent {
			if v == nil {
				missing = append(missing, f)
			}
			continue
		}
		if !truthy(v) {
			missing = append(missing, f)
		}
	}
	return missing
}

// MissingFieldsMessage is the itemized prompt shown when scoring is gated.
func MissingFieldsMessage(missing []domain.Field) string {
	if len(missing) == 0 {
		return ""
	}
	labels := make([]string, len(missing))
	for i, f := range missing {
		labels[i] = f.Label()
	}
	return missingFieldsPrefix + strings.Join(labels, ", ") + "."
}

// ParseFields converts configured field names, rejecting unknown ones.
func ParseFields(names []string) ([]domain.Field, error) {
	fields := make([]domain.Field, 0, len(names))
	for _, n := range names {
		f := domain.Field(strings.TrimSpace(n))
		if !f.Known() {
			return nil, eris.Errorf("unknown profile field %q", n)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
