package service

import (
	"fmt"
	"strings"
	"time"

	"dealdesk/domain"
)

// trackedFields is the order change-set values are applied and reported in.
var trackedFields = []domain.Field{
	domain.FieldCreditScore,
	domain.FieldDownPaymentPercent,
	domain.FieldPropertyValue,
	domain.FieldPropertyType,
	domain.FieldInvestmentExperience,
	domain.FieldPropertyLocation,
}

// changeValues returns the values cs carries, keyed by field.
func changeValues(cs domain.ParameterChangeSet) map[domain.Field]any {
	values := make(map[domain.Field]any, len(trackedFields))
	if cs.CreditScore != nil {
		values[domain.FieldCreditScore] = *cs.CreditScore
	}
	if cs.DownPaymentPercent != nil {
		values[domain.FieldDownPaymentPercent] = *cs.DownPaymentPercent
	}
	if cs.PropertyValue != nil {
		values[domain.FieldPropertyValue] = *cs.PropertyValue
	}
	if cs.PropertyType != nil {
		values[domain.FieldPropertyType] = *cs.PropertyType
	}
	if cs.InvestmentExperience != nil {
		values[domain.FieldInvestmentExperience] = *cs.InvestmentExperience
	}
	if cs.PropertyLocation != nil {
		values[domain.FieldPropertyLocation] = *cs.PropertyLocation
	}
	return values
}

// ApplyChanges records the values in cs on state. Every value appends a
// history entry; a value replacing a different earlier one also appends a
// correction. Hypothetical change sets are not recorded. It reports whether
// state changed.
func ApplyChanges(state *domain.SessionState, cs domain.ParameterChangeSet, at time.Time) bool {
	if cs.IsHypothetical {
		return false
	}
	if state.MentionedParameters == nil {
		*state = domain.NewSessionState()
	}

	values := changeValues(cs)
	applied := false
	for _, f := range trackedFields {
		v, ok := values[f]
		if !ok {
			continue
		}
		old, seen := state.MentionedParameters[f]
		state.MentionedParameters[f] = v
		state.ParameterHistory = append(state.ParameterHistory, domain.ParameterEntry{
			Parameter:    f,
			Value:        v,
			Timestamp:    at,
			IsCorrection: seen,
		})
		if seen && old != v {
			state.Corrections = append(state.Corrections, domain.Correction{
				Parameter: f,
				OldValue:  old,
				NewValue:  v,
				Timestamp: at,
			})
		}
		applied = true
	}
	return applied
}

var conversationLabels = map[domain.Field]string{
	domain.FieldDownPaymentPercent: "Down Payment",
}

// ConversationChanges summarizes what the user said during the session, for
// the assistant's context. It is empty until something has been recorded.
func ConversationChanges(state domain.SessionState) string {
	if len(state.ParameterHistory) == 0 {
		return ""
	}

	var parts []string
	for _, f := range trackedFields {
		v, ok := state.MentionedParameters[f]
		if !ok {
			continue
		}
		label, ok := conversationLabels[f]
		if !ok {
			label = f.Label()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, formatValue(v)))
	}
	if len(parts) == 0 {
		return ""
	}

	out := "User mentioned in conversation: " + strings.Join(parts, ", ")
	if len(state.Corrections) > 0 {
		corrections := make([]string, len(state.Corrections))
		for i, c := range state.Corrections {
			corrections[i] = fmt.Sprintf("%s corrected from %s to %s",
				c.Parameter, formatValue(c.OldValue), formatValue(c.NewValue))
		}
		out += ". Corrections: " + strings.Join(corrections, "; ")
	}
	return out
}

func formatValue(v any) string {
	if n, ok := numberOf(v); ok {
		return num(n)
	}
	return fmt.Sprint(v)
}
