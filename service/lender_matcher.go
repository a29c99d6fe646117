package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"dealdesk/domain"
	"dealdesk/repository"
)

// roundTo2Decimals rounds a confidence to two decimals.
func roundTo2Decimals(value float64) float64 {
	return math.Round(value*100) / 100
}

// MatcherConfig carries the scoring knobs that historically drifted between
// call sites.
type MatcherConfig struct {
	BaseConfidence    float64
	DefaultConfidence float64
	InclusionFloor    float64
	MatchThreshold    float64
	Limit             int
	CacheTTL          time.Duration
}

func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		BaseConfidence:    0.25,
		DefaultConfidence: 0.25,
		InclusionFloor:    0.1,
		MatchThreshold:    0.6,
		CacheTTL:          10 * time.Minute,
	}
}

type LenderMatcher struct {
	catalog     domain.Catalog
	fingerprint uint64
	cfg         MatcherConfig
	cache       repository.CacheRepository
	logger      *zap.Logger
}

// NewLenderMatcher creates a matcher over an immutable catalog. cache may be
// nil to disable result caching.
func NewLenderMatcher(
	catalog domain.Catalog,
	cfg MatcherConfig,
	cache repository.CacheRepository,
	logger *zap.Logger,
) *LenderMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LenderMatcher{
		catalog:     catalog,
		fingerprint: catalogFingerprint(catalog),
		cfg:         cfg,
		cache:       cache,
		logger:      logger,
	}
}

func (m *LenderMatcher) Catalog() domain.Catalog { return m.catalog }

func (m *LenderMatcher) Config() MatcherConfig { return m.cfg }

// MatchProfile gates p on the required fields and, when it passes, scores it
// against the catalog. Responses are cached by profile, scoring settings and
// catalog contents.
func (m *LenderMatcher) MatchProfile(
	ctx context.Context,
	p domain.BuyerProfile,
	required []domain.Field,
) domain.MatchResponse {
	missing := MissingFields(p, required)
	if len(missing) > 0 {
		scoringRequestsTotal.WithLabelValues("more_info").Inc()
		return domain.MatchResponse{
			RequiresMoreInfo: true,
			MissingFields:    missing,
			Message:          MissingFieldsMessage(missing),
			Matches:          []domain.MatchResult{},
		}
	}

	key := m.cacheKey(p)
	if m.cache != nil {
		if cached, ok := m.cache.Get(ctx, key); ok {
			var matches []domain.MatchResult
			if err := json.Unmarshal([]byte(cached), &matches); err == nil {
				scoringRequestsTotal.WithLabelValues("cached").Inc()
				return domain.MatchResponse{MissingFields: []domain.Field{}, Matches: matches}
			}
		}
	}

	start := time.Now()
	matches := m.Score(p, m.cfg.Limit)
	scoringDurationSeconds.Observe(time.Since(start).Seconds())
	scoringRequestsTotal.WithLabelValues("matched").Inc()

	m.logger.Debug("scored profile",
		zap.Int("lenders", len(m.catalog.Lenders)),
		zap.Int("results", len(matches)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if m.cache != nil {
		if data, err := json.Marshal(matches); err == nil {
			// not critical if the write fails
			if err := m.cache.Set(ctx, key, string(data), m.cfg.CacheTTL); err != nil {
				m.logger.Warn("failed to cache match results", zap.Error(err))
			}
		}
	}

	return domain.MatchResponse{MissingFields: []domain.Field{}, Matches: matches}
}

// Score ranks every lender in the catalog for p. Each lender appears exactly
// once. A limit of zero or less returns all lenders.
func (m *LenderMatcher) Score(p domain.BuyerProfile, limit int) []domain.MatchResult {
	loanAmount := LoanAmount(p)

	results := make([]domain.MatchResult, 0, len(m.catalog.Lenders))
	for _, lender := range m.catalog.Lenders {
		results = append(results, m.scoreLender(lender, p, loanAmount))
	}

	RankMatches(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// LoanAmount is the financed amount implied by the property value and the
// down payment, nil unless both are known.
func LoanAmount(p domain.BuyerProfile) *float64 {
	if p.PropertyValue == nil || *p.PropertyValue == 0 || p.DownPaymentPercent == nil {
		return nil
	}
	v := *p.PropertyValue * (1 - *p.DownPaymentPercent/100)
	return &v
}

func (m *LenderMatcher) scoreLender(lender domain.Lender, p domain.BuyerProfile, loanAmount *float64) domain.MatchResult {
	var qualifying []domain.ProgramScore
	for _, prog := range lender.Programs {
		score := m.ScoreProgram(prog, p, loanAmount)
		if score.Confidence >= m.cfg.InclusionFloor {
			qualifying = append(qualifying, score)
		}
	}

	if len(qualifying) == 0 {
		return m.buildResult(lender, m.defaultScore(lender, p), true, nil)
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].Confidence > qualifying[j].Confidence
	})
	return m.buildResult(lender, qualifying[0], false, qualifying[1:])
}

func (m *LenderMatcher) buildResult(
	lender domain.Lender,
	score domain.ProgramScore,
	isDefault bool,
	alternatives []domain.ProgramScore,
) domain.MatchResult {
	r := domain.MatchResult{
		LenderName:         lender.DisplayName,
		LenderKey:          lender.ID,
		ProgramName:        score.ProgramName,
		Confidence:         score.Confidence,
		IsMatch:            score.Confidence >= m.cfg.MatchThreshold,
		IsDefault:          isDefault,
		Rationale:          score.Rationale,
		MaxLTV:             score.MaxLTV,
		MinCreditScore:     score.MinCreditScore,
		MaxLoanAmount:      score.MaxLoanAmount,
		DepartmentContacts: lender.DepartmentContacts,
	}
	if r.ProgramName == "" {
		r.ProgramName = lender.DisplayName
	}
	if lender.Website != "" {
		r.Website = domain.String(lender.Website)
	}
	if lender.Phone != "" {
		r.ContactPhone = domain.String(lender.Phone)
	}
	if len(alternatives) > 0 {
		r.Alternatives = append([]domain.ProgramScore(nil), alternatives...)
	}

	summary := strings.TrimSpace(score.Rationale)
	r.MatchSummary = summary
	if r.MatchSummary == "" {
		r.MatchSummary = "Program available for review."
	}
	if !r.IsMatch {
		reason := summary
		if reason == "" {
			reason = "Program may require stronger qualifications."
		}
		r.NonMatchReason = &reason
	}
	return r
}

// defaultScore is the synthetic entry for a lender none of whose programs
// cleared the inclusion floor.
func (m *LenderMatcher) defaultScore(lender domain.Lender, p domain.BuyerProfile) domain.ProgramScore {
	var b strings.Builder
	fmt.Fprintf(&b, "%s offers programs worth reviewing once more details are provided.", lender.DisplayName)
	conf := applyExperience(m.cfg.DefaultConfidence, p, &b, " ")
	return domain.ProgramScore{
		ProgramName: lender.DisplayName,
		Confidence:  finalConfidence(conf),
		Rationale:   b.String(),
	}
}

// ScoreProgram scores one program. Occupancy-specific terms are chosen from
// the profile, and for tiered programs the tier yielding the highest
// confidence is used.
func (m *LenderMatcher) ScoreProgram(prog domain.Program, p domain.BuyerProfile, loanAmount *float64) domain.ProgramScore {
	terms := prog.Terms
	if prog.InvestmentTerms != nil && isInvestmentProfile(p) {
		terms = *prog.InvestmentTerms
	}
	if len(prog.Tiers) == 0 {
		return m.scoreTerms(prog, terms, p, loanAmount)
	}

	var best domain.ProgramScore
	for i, tier := range prog.Tiers {
		merged := domain.ProgramTerms{
			MinCreditScore: firstNonNil(tier.MinCreditScore, terms.MinCreditScore),
			MaxLTV:         firstNonNil(tier.MaxLTV, terms.MaxLTV),
			MaxLoanAmount:  firstNonNil(tier.MaxLoanAmount, terms.MaxLoanAmount),
		}
		score := m.scoreTerms(prog, merged, p, loanAmount)
		if i == 0 || score.Confidence > best.Confidence {
			best = score
		}
	}
	return best
}

func (m *LenderMatcher) scoreTerms(
	prog domain.Program,
	terms domain.ProgramTerms,
	p domain.BuyerProfile,
	loanAmount *float64,
) domain.ProgramScore {
	conf := m.cfg.BaseConfidence
	var b strings.Builder
	fmt.Fprintf(&b, "%s available. ", prog.Name)

	credit := p.CreditScore
	switch {
	case credit != nil && terms.MinCreditScore != nil && *terms.MinCreditScore > 0:
		minScore := *terms.MinCreditScore
		if *credit >= minScore {
			conf += CreditMetBonus
			fmt.Fprintf(&b, "Credit score %s meets %s. ", num(*credit), num(minScore))
		} else {
			shortfall := (minScore - *credit) / minScore
			conf = math.Max(0, conf-CreditShortfallWeight*shortfall)
			fmt.Fprintf(&b, "Credit score below minimum requirement (%s < %s). ", num(*credit), num(minScore))
		}
	case credit != nil && *credit >= TypicalMinimumCredit:
		conf += CreditNoMinimumBonus
		fmt.Fprintf(&b, "Documented credit score of %s. ", num(*credit))
	case credit != nil:
		conf = math.Max(0, conf-CreditNoMinimumMalus)
		fmt.Fprintf(&b, "Credit score %s is below typical lender minimums. ", num(*credit))
	}

	down := p.DownPaymentPercent
	switch {
	case down != nil && terms.MaxLTV != nil:
		requiredDown := 100 - *terms.MaxLTV
		if *down >= requiredDown {
			conf += DownPaymentMetBonus
			fmt.Fprintf(&b, "Down payment of %s%% satisfies %s%%+. ", num(*down), num(requiredDown))
		} else {
			conf += DownPaymentPartialBonus * (*down / requiredDown)
			fmt.Fprintf(&b, "Consider increasing down payment to %s%%+. ", num(requiredDown))
		}
	case down != nil && *down >= DownPaymentNoLTVMinimum:
		conf += DownPaymentNoLTVBonus
		fmt.Fprintf(&b, "%s%% down payment improves terms. ", num(*down))
	}

	if loanAmount != nil && *loanAmount > 0 && terms.MaxLoanAmount != nil && *terms.MaxLoanAmount > 0 {
		if *loanAmount <= *terms.MaxLoanAmount {
			conf += LoanWithinCapBonus
			fmt.Fprintf(&b, "Loan amount ~$%s within program limits. ", money(*loanAmount))
		} else {
			conf += LoanOverCapBonus
			fmt.Fprintf(&b, "Loan amount may exceed program cap of $%s. ", money(*terms.MaxLoanAmount))
		}
	}

	if supportsPropertyType(prog, p.PropertyType) {
		conf += PropertyTypeBonus
		fmt.Fprintf(&b, "Property type supported (%s). ", *p.PropertyType)
	} else if strings.Contains(strings.ToLower(prog.Purpose), "investment") {
		conf += InvestmentPurposeBonus
		b.WriteString("Designed for investment properties. ")
	}

	conf = applyExperience(conf, p, &b, "")

	return domain.ProgramScore{
		ProgramName:    prog.Name,
		Confidence:     finalConfidence(conf),
		Rationale:      b.String(),
		MaxLTV:         terms.MaxLTV,
		MinCreditScore: terms.MinCreditScore,
		MaxLoanAmount:  terms.MaxLoanAmount,
	}
}

// applyExperience adjusts conf for the investor's track record and appends
// the matching clause, preceded by sep.
func applyExperience(conf float64, p domain.BuyerProfile, b *strings.Builder, sep string) float64 {
	if p.InvestmentExperience == nil {
		return conf
	}
	exp := strings.ToLower(*p.InvestmentExperience)
	switch {
	case strings.Contains(exp, "first"):
		b.WriteString(sep + "First-time investor may face additional requirements. ")
		return math.Max(0, conf-FirstTimeInvestorMalus)
	case strings.Contains(exp, "experienced"):
		b.WriteString(sep + "Experienced investor. ")
		return conf + ExperiencedInvestorBonus
	}
	return conf
}

func finalConfidence(conf float64) float64 {
	return roundTo2Decimals(math.Max(MinConfidence, math.Min(MaxConfidence, conf)))
}

func supportsPropertyType(prog domain.Program, propertyType *string) bool {
	if propertyType == nil || len(prog.PropertyTypes) == 0 {
		return false
	}
	token := NormalizePropertyType(*propertyType)
	if token == "" {
		return false
	}
	for _, t := range prog.PropertyTypes {
		if strings.Contains(strings.ToLower(t), token) {
			return true
		}
	}
	return false
}

var propertyTypeTokens = map[string]string{
	"single_family": "single",
	"duplex":        "duplex",
	"triplex":       "triplex",
	"fourplex":      "four",
	"condo":         "condo",
	"townhouse":     "town",
	"investment":    "investment",
}

// NormalizePropertyType maps a profile property type to the loose token
// matched against program type lists.
func NormalizePropertyType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if token, ok := propertyTypeTokens[t]; ok {
		return token
	}
	return t
}

// isInvestmentProfile reports whether investment-property terms apply: the
// property is rented out or its type says so.
func isInvestmentProfile(p domain.BuyerProfile) bool {
	if p.CurrentRent != nil && *p.CurrentRent > 0 {
		return true
	}
	if p.PropertyType == nil {
		return false
	}
	t := strings.ToLower(*p.PropertyType)
	return strings.Contains(t, "investment") || strings.Contains(t, "rental")
}

// RankMatches orders results in place: matches by descending confidence,
// then non-matches by lender name.
func RankMatches(results []domain.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.IsMatch != b.IsMatch {
			return a.IsMatch
		}
		if a.IsMatch {
			return a.Confidence > b.Confidence
		}
		la, lb := strings.ToLower(a.LenderName), strings.ToLower(b.LenderName)
		if la != lb {
			return la < lb
		}
		return a.LenderName < b.LenderName
	})
}

// cacheKey identifies a scoring result. The required-field gate runs before
// the cache, so the required set does not change what is stored.
func (m *LenderMatcher) cacheKey(p domain.BuyerProfile) string {
	data, _ := json.Marshal(struct {
		Profile           domain.BuyerProfile `json:"p"`
		Limit             int                 `json:"l"`
		BaseConfidence    float64             `json:"b"`
		DefaultConfidence float64             `json:"d"`
		InclusionFloor    float64             `json:"f"`
		MatchThreshold    float64             `json:"t"`
		Catalog           uint64              `json:"c"`
	}{
		Profile:           p,
		Limit:             m.cfg.Limit,
		BaseConfidence:    m.cfg.BaseConfidence,
		DefaultConfidence: m.cfg.DefaultConfidence,
		InclusionFloor:    m.cfg.InclusionFloor,
		MatchThreshold:    m.cfg.MatchThreshold,
		Catalog:           m.fingerprint,
	})
	return fmt.Sprintf("dealdesk:match:%016x", xxhash.Sum64(data))
}

func catalogFingerprint(c domain.Catalog) uint64 {
	data, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func money(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}
