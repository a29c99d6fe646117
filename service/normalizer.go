package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"dealdesk/domain"
)

var nonNumericRE = regexp.MustCompile(`[^0-9.]`)

// NormalizeProfile coerces a loosely typed profile into a BuyerProfile.
// Malformed values become nil; it never fails. Credit scores outside
// 300-850 and down payments outside 0-100 are treated as unknown.
func NormalizeProfile(raw map[string]any) domain.BuyerProfile {
	if raw == nil {
		return domain.BuyerProfile{}
	}

	p := domain.BuyerProfile{
		PropertyValue:        safeNumber(raw[string(domain.FieldPropertyValue)]),
		PropertyType:         sanitizeString(raw[string(domain.FieldPropertyType)]),
		PropertyLocation:     sanitizeString(raw[string(domain.FieldPropertyLocation)]),
		DownPaymentPercent:   safeNumber(raw[string(domain.FieldDownPaymentPercent)]),
		PropertyVacant:       sanitizeString(raw[string(domain.FieldPropertyVacant)]),
		CurrentRent:          safeNumber(raw[string(domain.FieldCurrentRent)]),
		CreditScore:          safeNumber(raw[string(domain.FieldCreditScore)]),
		InvestmentExperience: sanitizeString(raw[string(domain.FieldInvestmentExperience)]),
	}

	if p.CreditScore != nil && (*p.CreditScore < MinCreditScore || *p.CreditScore > MaxCreditScore) {
		p.CreditScore = nil
	}
	if p.DownPaymentPercent != nil && (*p.DownPaymentPercent < 0 || *p.DownPaymentPercent > 100) {
		p.DownPaymentPercent = nil
	}
	return p
}

func safeNumber(v any) *float64 {
	if n, ok := numberOf(v); ok {
		return &n
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = nonNumericRE.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	return &n
}

func sanitizeString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// MergeChanges overlays the values a change set carries onto p.
func MergeChanges(p domain.BuyerProfile, cs domain.ParameterChangeSet) domain.BuyerProfile {
	if cs.CreditScore != nil {
		p.CreditScore = domain.Float(*cs.CreditScore)
	}
	if cs.DownPaymentPercent != nil {
		p.DownPaymentPercent = domain.Float(*cs.DownPaymentPercent)
	}
	if cs.PropertyValue != nil {
		p.PropertyValue = domain.Float(*cs.PropertyValue)
	}
	if cs.PropertyType != nil {
		p.PropertyType = domain.String(*cs.PropertyType)
	}
	if cs.InvestmentExperience != nil {
		p.InvestmentExperience = domain.String(*cs.InvestmentExperience)
	}
	if cs.PropertyLocation != nil {
		p.PropertyLocation = domain.String(*cs.PropertyLocation)
	}
	return p
}
