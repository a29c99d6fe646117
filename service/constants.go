package service

// Scoring weights. Each rule adds or subtracts its weight from the running
// confidence; the rationale gets one clause per rule that fired.
const (
	CreditMetBonus        = 0.30
	CreditShortfallWeight = 0.30 // multiplied by the relative shortfall
	CreditNoMinimumBonus  = 0.20
	CreditNoMinimumMalus  = 0.20
	TypicalMinimumCredit  = 620.0

	DownPaymentMetBonus     = 0.20
	DownPaymentPartialBonus = 0.10 // scaled by buyer down / required down
	DownPaymentNoLTVBonus   = 0.15
	DownPaymentNoLTVMinimum = 20.0

	LoanWithinCapBonus = 0.10
	LoanOverCapBonus   = 0.05

	PropertyTypeBonus      = 0.10
	InvestmentPurposeBonus = 0.05

	FirstTimeInvestorMalus   = 0.15
	ExperiencedInvestorBonus = 0.10

	MinConfidence = 0.05
	MaxConfidence = 0.99
)

// Extraction bounds for values mentioned in chat.
const (
	MinCreditScore = 300
	MaxCreditScore = 850

	// Relative credit changes ("100 points lower") are only resolved for
	// deltas below this; larger numbers are read as absolute scores.
	MaxRelativeCreditDelta = 500

	MaxChatDownPayment = 50.0

	MinChatPropertyValue = 50_000.0
	MaxChatPropertyValue = 10_000_000.0
	KiloSuffixCeiling    = 10_000.0

	MinCityLength = 2
	MaxCityLength = 50
)

// DefaultHistoryLimit keeps the last ten exchanges.
const DefaultHistoryLimit = 20
