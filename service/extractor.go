package service

import (
	"regexp"
	"strconv"
	"strings"

	"dealdesk/domain"
)

// Pattern order matters: for each parameter the first pattern yielding a
// valid value wins.
var (
	hypotheticalPatterns = compileAll(
		`what\s+if`,
		`suppose\s+(?:i|my|we)`,
		`imagine\s+(?:i|my|we)`,
		`if\s+(?:i|my|we)\s+(?:had|was|were|could)`,
		`hypothetically`,
		`assuming`,
		`let['’]?s\s+say`,
	)

	creditPatterns = compileAll(
		`credit score.*?(\d{3})`,
		`credit.*?(\d{3})`,
		`score.*?(\d{3})`,
		`(\d{3}).*?credit`,
		`actually.*?(\d{3})`,
		`my.*?credit.*?(\d{3})`,
		`(\d+)\s*points?\s+(?:lower|higher|less|more|better|worse)`,
		`if.*?credit.*?(?:was|were|is)\s*(\d{3})`,
		`what.*?if.*?credit.*?(\d{3})`,
	)
	pointsDownRE = regexp.MustCompile(`(?i)points?\s+(?:lower|less|worse)`)
	pointsUpRE   = regexp.MustCompile(`(?i)points?\s+(?:higher|more|better)`)

	downPaymentPatterns = compileAll(
		`down.*?payment.*?(\d+)%`,
		`put.*?down.*?(\d+)%`,
		`(\d+)%.*?down`,
		`down.*?(\d+)%`,
		`(\d+).*?percent.*?down`,
	)

	propertyValuePatterns = compileAll(
		`property.*?value.*?\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`,
		`property.*?worth.*?\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`,
		`valued.*?at.*?\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`,
		`\$(\d+(?:,\d{3})*(?:\.\d{2})?).*?(?:property|home|house|condo|single family|duplex|triplex|fourplex|townhouse)`,
		`worth.*?\$(\d+(?:,\d{3})*(?:\.\d{2})?)`,
		`(\d+(?:,\d{3})*(?:\.\d{2})?)k?\s*(?:property|home|house|condo|single family|duplex|triplex|fourplex|townhouse)`,
	)
	kiloSuffixRE = regexp.MustCompile(`(?i)\d+k\s`)

	locationPatterns = compileAll(
		`property\s+(?:in|at|near|around|for)\s+([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Z]{2})\b`,
		`property\s+(?:in|at|near|around|for)\s+([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Za-z]+(?:\s+[A-Za-z]+){0,2})\b`,
		`loan.*?(?:in|at|near|around|for)\s+([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Z]{2})\b`,
		`loan.*?(?:in|at|near|around|for)\s+([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Za-z]+(?:\s+[A-Za-z]+){0,2})\b`,
		`(?:in|at|near|around|for)\s+([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Z]{2})\b`,
		`(?:in|at|near|around|for)\s+([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Za-z]+(?:\s+[A-Za-z]+){0,2})\b`,
		`([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Za-z]+(?:\s+[A-Za-z]+){0,2})\b`,
		`,\s*([A-Za-z]+(?:\s+[A-Za-z]+)*),\s*([A-Z]{2})\b`,
	)
	stateCodeRE = regexp.MustCompile(`^[A-Z]{2}$`)
)

type phrase struct {
	text  string
	value string
}

var propertyTypePhrases = []phrase{
	{"single family", "single_family"},
	{"single-family", "single_family"},
	{"duplex", "duplex"},
	{"triplex", "triplex"},
	{"fourplex", "fourplex"},
	{"condo", "condo"},
	{"townhouse", "townhouse"},
	{"town home", "townhouse"},
}

var experiencePhrases = []phrase{
	{"first-time", "first_time"},
	{"first time", "first_time"},
	{"some experience", "some_experience"},
	{"experienced", "experienced"},
	{"professional", "professional"},
}

var recommendationKeywords = []string{
	"recommend", "suggest", "other lenders", "better options",
	"alternative", "different lender", "more options", "other choices",
	"what about", "what else", "any other",
}

var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
}

var validStateCodes = func() map[string]bool {
	codes := make(map[string]bool, len(stateCodes))
	for _, c := range stateCodes {
		codes[c] = true
	}
	return codes
}()

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// DetectParameterChanges scans a chat message for deal parameters. Relative
// credit phrasing ("50 points higher") resolves against current.CreditScore.
// At most one value per parameter is reported.
func DetectParameterChanges(message string, current domain.BuyerProfile) domain.ParameterChangeSet {
	cs := domain.ParameterChangeSet{}
	lower := strings.ToLower(message)

	for _, re := range hypotheticalPatterns {
		if re.MatchString(message) {
			cs.IsHypothetical = true
			break
		}
	}

	if v := detectCreditScore(message, current.CreditScore); v != nil {
		cs.CreditScore = v
	}
	if v := detectDownPayment(message); v != nil {
		cs.DownPaymentPercent = v
	}
	if v := detectPropertyValue(message); v != nil {
		cs.PropertyValue = v
	}
	if v := matchPhrase(lower, propertyTypePhrases); v != nil {
		cs.PropertyType = v
	}
	if v := matchPhrase(lower, experiencePhrases); v != nil {
		cs.InvestmentExperience = v
	}
	if v := detectLocation(message); v != nil {
		cs.PropertyLocation = v
	}

	cs.HasChanges = cs.CreditScore != nil || cs.DownPaymentPercent != nil ||
		cs.PropertyValue != nil || cs.PropertyType != nil ||
		cs.InvestmentExperience != nil || cs.PropertyLocation != nil
	return cs
}

// AsksForRecommendations reports whether the message asks for lender
// suggestions, which triggers a re-score even without parameter changes.
func AsksForRecommendations(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range recommendationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func detectCreditScore(message string, current *float64) *float64 {
	for _, re := range creditPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil || m[1] == "" {
			continue
		}
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		if current != nil && *current != 0 && score < MaxRelativeCreditDelta {
			switch {
			case pointsDownRE.MatchString(message):
				score = *current - score
			case pointsUpRE.MatchString(message):
				score = *current + score
			}
		}

		if score >= MinCreditScore && score <= MaxCreditScore {
			return &score
		}
	}
	return nil
}

func detectDownPayment(message string) *float64 {
	for _, re := range downPaymentPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil || m[1] == "" {
			continue
		}
		percent, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if percent >= 0 && percent <= MaxChatDownPayment {
			return &percent
		}
	}
	return nil
}

func detectPropertyValue(message string) *float64 {
	for _, re := range propertyValuePatterns {
		m := re.FindStringSubmatch(message)
		if m == nil || m[1] == "" {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if kiloSuffixRE.MatchString(m[0]) && value < KiloSuffixCeiling {
			value *= 1000
		}
		if value >= MinChatPropertyValue && value <= MaxChatPropertyValue {
			return &value
		}
	}
	return nil
}

func matchPhrase(lower string, table []phrase) *string {
	for _, p := range table {
		if strings.Contains(lower, p.text) {
			return domain.String(p.value)
		}
	}
	return nil
}

func detectLocation(message string) *string {
	for _, re := range locationPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		city := strings.TrimSpace(m[1])
		state := resolveState(strings.TrimSpace(m[2]))
		if state == "" || len(city) < MinCityLength || len(city) > MaxCityLength {
			continue
		}
		loc := city + ", " + state
		return &loc
	}
	return nil
}

// resolveState accepts an upper-case postal code or a full state name.
// Full names may be followed by trailing words ("Texas please"); the
// longest leading run of words naming a state wins.
func resolveState(s string) string {
	if len(s) == 2 {
		if stateCodeRE.MatchString(s) && validStateCodes[s] {
			return s
		}
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for n := len(words); n > 0; n-- {
		if code, ok := stateCodes[strings.Join(words[:n], " ")]; ok {
			return code
		}
	}
	return ""
}
