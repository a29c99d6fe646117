package service

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"dealdesk/domain"
)

var (
	// ErrCatalogInvalid is returned when the catalog has no top-level
	// lender collection. The matcher cannot run on a partial catalog.
	ErrCatalogInvalid = eris.New("catalog: missing lenders collection")
)

// BuildCatalog turns a parsed lender database into the uniform catalog the
// matcher scores against. Lenders may be given as a map keyed by lender id
// (emitted in key order) or as an array. Programs may come from a
// loan_programs array, a programs map, or a programs array, and any of them
// may carry tiers.
func BuildCatalog(raw map[string]any) (domain.Catalog, error) {
	if raw == nil {
		return domain.Catalog{}, ErrCatalogInvalid
	}

	var lenders []domain.Lender
	switch coll := raw["lenders"].(type) {
	case map[string]any:
		keys := make([]string, 0, len(coll))
		for k := range coll {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj, ok := coll[k].(map[string]any)
			if !ok {
				continue
			}
			lenders = append(lenders, buildLender(k, obj))
		}
	case []any:
		for i, entry := range coll {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			id := firstString(obj, "id", "lender_key", "key")
			if id == "" {
				id = slug(firstString(obj, "company_name", "display_name", "name"))
			}
			if id == "" {
				return domain.Catalog{}, eris.Errorf("catalog: lender %d has neither id nor name", i)
			}
			lenders = append(lenders, buildLender(id, obj))
		}
	default:
		return domain.Catalog{}, ErrCatalogInvalid
	}

	return domain.Catalog{Lenders: lenders}, nil
}

// DecodeCatalog parses a JSON lender database and builds the catalog.
func DecodeCatalog(data []byte) (domain.Catalog, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Catalog{}, eris.Wrap(err, "catalog: decode")
	}
	return BuildCatalog(raw)
}

func buildLender(id string, obj map[string]any) domain.Lender {
	l := domain.Lender{
		ID:          id,
		DisplayName: firstString(obj, "company_name", "display_name", "name"),
		Website:     firstString(obj, "website"),
		Phone:       firstString(obj, "contact_phone", "phone"),
	}
	if l.DisplayName == "" {
		l.DisplayName = id
	}

	if contacts, ok := obj["department_contacts"].(map[string]any); ok && len(contacts) > 0 {
		l.DepartmentContacts = make(map[string]json.RawMessage, len(contacts))
		for label, contact := range contacts {
			b, err := json.Marshal(contact)
			if err != nil {
				continue
			}
			l.DepartmentContacts[label] = b
		}
	}

	if list, ok := obj["loan_programs"].([]any); ok {
		for _, entry := range list {
			if p, ok := entry.(map[string]any); ok {
				l.Programs = append(l.Programs, buildFlatProgram("", p))
			}
		}
	}

	switch programs := obj["programs"].(type) {
	case map[string]any:
		keys := make([]string, 0, len(programs))
		for k := range programs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p, ok := programs[k].(map[string]any)
			if !ok {
				continue
			}
			if prog, ok := buildKeyedProgram(k, p); ok {
				l.Programs = append(l.Programs, prog)
			}
		}
	case []any:
		for _, entry := range programs {
			if p, ok := entry.(map[string]any); ok {
				l.Programs = append(l.Programs, buildFlatProgram("", p))
			}
		}
	}

	return l
}

func buildFlatProgram(key string, p map[string]any) domain.Program {
	prog := domain.Program{
		Key:    key,
		Name:   firstString(p, "program_type", "program_name"),
		Source: domain.ProgramSourceFlat,
		Terms: domain.ProgramTerms{
			MinCreditScore: ExtractMinCreditScore(p["credit_requirements"]),
			MaxLTV:         ParsePercent(p["max_ltv"]),
			MaxLoanAmount:  ParseCurrency(p["max_loan_amount"]),
		},
		PropertyTypes: stringList(p["property_types"]),
		Purpose:       firstString(p, "purpose", "specialty"),
	}
	if prog.Name == "" {
		prog.Name = "Program"
	}
	if tiers := buildTiers(p["tiers"]); len(tiers) > 0 {
		prog.Source = domain.ProgramSourceTiered
		prog.Tiers = tiers
	}
	return prog
}

// buildKeyedProgram normalizes one entry of a programs map. Keyed entries
// carry credit requirements split by occupancy; entries with neither credit
// requirements nor tiers describe no terms and are skipped.
func buildKeyedProgram(key string, p map[string]any) (domain.Program, bool) {
	reqs, hasReqs := p["credit_requirements"].(map[string]any)
	tiers := buildTiers(p["tiers"])
	if !truthy(p["credit_requirements"]) && len(tiers) == 0 {
		return domain.Program{}, false
	}

	prog := domain.Program{
		Key:           key,
		Name:          firstString(p, "program_name"),
		Source:        domain.ProgramSourceKeyed,
		PropertyTypes: stringList(p["property_types"]),
		Purpose:       firstString(p, "specialty", "purpose"),
	}
	if prog.Name == "" {
		prog.Name = key
	}

	amounts, _ := p["loan_amounts"].(map[string]any)
	fallbackLoan := FindMaxLoanAmount(p)

	var primary any = p["credit_requirements"]
	if hasReqs {
		if pr, ok := reqs["primary_residence"]; ok && truthy(pr) {
			primary = pr
		}
	}
	prog.Terms = domain.ProgramTerms{
		MinCreditScore: ExtractMinCreditScore(primary),
		MaxLTV:         firstNonNil(FindMaxLTV(primary), ParsePercent(p["max_ltv"])),
		MaxLoanAmount:  firstNonNil(occupancyMax(amounts, "primary_residence"), fallbackLoan),
	}

	investReqs := reqs["investment_properties"]
	investLoan := occupancyMax(amounts, "investment_properties")
	if truthy(investReqs) || investLoan != nil {
		terms := prog.Terms
		if truthy(investReqs) {
			terms.MinCreditScore = ExtractMinCreditScore(investReqs)
			terms.MaxLTV = firstNonNil(FindMaxLTV(investReqs), ParsePercent(p["max_ltv"]))
		}
		terms.MaxLoanAmount = firstNonNil(investLoan, occupancyMax(amounts, "primary_residence"), fallbackLoan)
		prog.InvestmentTerms = &terms
	}

	if len(tiers) > 0 {
		prog.Source = domain.ProgramSourceTiered
		prog.Tiers = tiers
	}
	return prog, true
}

func buildTiers(v any) []domain.ProgramTerms {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	tiers := make([]domain.ProgramTerms, 0, len(list))
	for _, entry := range list {
		t, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		credit := t["min_credit_score"]
		if credit == nil {
			credit = t["min_fico"]
		}
		tiers = append(tiers, domain.ProgramTerms{
			MinCreditScore: ExtractMinCreditScore(credit),
			MaxLTV:         ParsePercent(t["max_ltv"]),
			MaxLoanAmount:  ParseCurrency(t["max_loan_amount"]),
		})
	}
	return tiers
}

func occupancyMax(amounts map[string]any, occupancy string) *float64 {
	entry, ok := amounts[occupancy].(map[string]any)
	if !ok {
		return nil
	}
	return ParseCurrency(entry["max"])
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		if s, ok := entry.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "_")
}
