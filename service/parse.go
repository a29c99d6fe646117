package service

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	leadingNumberRE  = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)`)
	leadingIntRE     = regexp.MustCompile(`^[+-]?\d+`)
	threeDigitRE     = regexp.MustCompile(`\d{3}`)
	nonPercentRE     = regexp.MustCompile(`[^\d.]`)
	minFicoKeyRE     = regexp.MustCompile(`min_fico_(\d+)`)
	millionSuffixRE  = regexp.MustCompile(`(?i)mm|m\s`)
	thousandSuffixRE = regexp.MustCompile(`(?i)k`)
	bareMillionRE    = regexp.MustCompile(`(?i)^\s*[\d.]+\s*m\s*$`)
)

// parseLeadingFloat reads the numeric prefix of s, ignoring leading
// whitespace and anything after the number.
func parseLeadingFloat(s string) (float64, bool) {
	m := leadingNumberRE.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseLeadingInt(s string) (float64, bool) {
	m := leadingIntRE.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	i, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(i), true
}

// numberOf unwraps the numeric JSON representations.
func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return numberOf(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return numberOf(f)
	}
	return 0, false
}

// ParsePercent reads an LTV-style percentage. Values at or below 1 are
// fractions and are scaled to percent.
func ParsePercent(v any) *float64 {
	if v == nil {
		return nil
	}
	if n, ok := numberOf(v); ok {
		if n > 1 {
			return &n
		}
		n *= 100
		return &n
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	n, ok := parseLeadingFloat(nonPercentRE.ReplaceAllString(s, ""))
	if !ok {
		return nil
	}
	if n <= 1 {
		n *= 100
	}
	return &n
}

// ParseCurrency reads a dollar amount such as 1500000, "$1,500,000",
// "750k" or "2.5mm ". Unparseable input yields nil.
func ParseCurrency(v any) *float64 {
	if v == nil {
		return nil
	}
	if n, ok := numberOf(v); ok {
		return &n
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}

	cleaned := strings.NewReplacer("$", "", ",", "").Replace(s)
	lower := strings.ToLower(cleaned)
	multiplier := decimal.NewFromInt(1)

	switch {
	case strings.Contains(lower, "mm") || strings.Contains(lower, "m "):
		multiplier = decimal.NewFromInt(1_000_000)
		cleaned = replaceFirst(millionSuffixRE, cleaned)
	case bareMillionRE.MatchString(cleaned):
		multiplier = decimal.NewFromInt(1_000_000)
		cleaned = strings.TrimRight(strings.TrimSpace(cleaned), "mM ")
	case strings.Contains(lower, "k"):
		multiplier = decimal.NewFromInt(1_000)
		cleaned = replaceFirst(thousandSuffixRE, cleaned)
	}

	m := leadingNumberRE.FindString(strings.TrimSpace(cleaned))
	if m == "" {
		return nil
	}
	amount, err := decimal.NewFromString(m)
	if err != nil {
		return nil
	}
	f, _ := amount.Mul(multiplier).Float64()
	return &f
}

func replaceFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}

// ExtractMinCreditScore resolves a polymorphic credit requirement to the
// lowest score it accepts. Numbers pass through, strings yield their first
// three-digit run, arrays and objects recurse and keep the minimum, and keys
// shaped like min_fico_640 contribute the embedded number.
func ExtractMinCreditScore(v any) *float64 {
	switch req := v.(type) {
	case nil:
		return nil
	case string:
		m := threeDigitRE.FindString(req)
		if m == "" {
			return nil
		}
		n, _ := strconv.ParseFloat(m, 64)
		return &n
	case []any:
		return minOf(req, ExtractMinCreditScore)
	case map[string]any:
		for _, key := range []string{"min_fico", "min_credit_score"} {
			if n := intLike(req[key]); n != nil {
				return n
			}
		}
		var best *float64
		for key, value := range req {
			var candidate *float64
			if m := minFicoKeyRE.FindStringSubmatch(key); m != nil {
				n, err := strconv.ParseFloat(m[1], 64)
				if err == nil {
					candidate = &n
				}
			} else {
				candidate = ExtractMinCreditScore(value)
			}
			if candidate != nil && (best == nil || *candidate < *best) {
				best = candidate
			}
		}
		return best
	}
	if n, ok := numberOf(v); ok && n != 0 {
		return &n
	}
	return nil
}

// intLike reads a min_fico style value: a number, or a string with a
// leading integer ("640+"). Zero counts as absent.
func intLike(v any) *float64 {
	if n, ok := numberOf(v); ok {
		n = math.Trunc(n)
		if n == 0 {
			return nil
		}
		return &n
	}
	if s, ok := v.(string); ok {
		if n, ok := parseLeadingInt(s); ok && n != 0 {
			return &n
		}
	}
	return nil
}

func minOf(values []any, extract func(any) *float64) *float64 {
	var best *float64
	for _, v := range values {
		if n := extract(v); n != nil && (best == nil || *n < *best) {
			best = n
		}
	}
	return best
}

// FindMaxLTV looks for a max_ltv entry at any depth and keeps the most
// permissive one.
func FindMaxLTV(v any) *float64 {
	var children []any
	switch req := v.(type) {
	case map[string]any:
		if raw, ok := req["max_ltv"]; ok && truthy(raw) {
			return ParsePercent(raw)
		}
		for _, child := range req {
			children = append(children, child)
		}
	case []any:
		children = req
	default:
		return nil
	}

	var best *float64
	for _, child := range children {
		if n := FindMaxLTV(child); n != nil && (best == nil || *n > *best) {
			best = n
		}
	}
	return best
}

// FindMaxLoanAmount reads max_loan_amount, or the largest max across a
// loan_amounts breakdown.
func FindMaxLoanAmount(program map[string]any) *float64 {
	if program == nil {
		return nil
	}
	if raw, ok := program["max_loan_amount"]; ok && truthy(raw) {
		return ParseCurrency(raw)
	}
	amounts, ok := program["loan_amounts"].(map[string]any)
	if !ok {
		return nil
	}
	var best *float64
	for _, entry := range amounts {
		if obj, ok := entry.(map[string]any); ok {
			entry = obj["max"]
		}
		if n := ParseCurrency(entry); n != nil && (best == nil || *n > *best) {
			best = n
		}
	}
	return best
}

// truthy mirrors the loose presence checks the catalog was written against:
// nil, false, zero and the empty string count as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := numberOf(v); ok {
		return n != 0
	}
	return true
}
