package domain

import "encoding/json"

// ProgramSource records which catalog shape a program was ingested from.
type ProgramSource string

const (
	ProgramSourceFlat   ProgramSource = "flat"   // entry of a loan_programs array
	ProgramSourceKeyed  ProgramSource = "keyed"  // value of a programs map
	ProgramSourceTiered ProgramSource = "tiered" // program carrying credit/LTV tiers
)

// ProgramTerms are the numeric limits a program (or one of its tiers) imposes.
// A nil field means the catalog does not state that limit.
type ProgramTerms struct {
	MinCreditScore *float64 `json:"minCreditScore"`
	MaxLTV         *float64 `json:"maxLTV"`
	MaxLoanAmount  *float64 `json:"maxLoanAmount"`
}

type Program struct {
	Key    string
	Name   string
	Source ProgramSource
	Terms  ProgramTerms
	// InvestmentTerms is set when the catalog lists separate limits for
	// investment properties.
	InvestmentTerms *ProgramTerms
	Tiers           []ProgramTerms
	PropertyTypes   []string
	Purpose         string
}

type Lender struct {
	ID                 string
	DisplayName        string
	Website            string
	Phone              string
	DepartmentContacts map[string]json.RawMessage
	Programs           []Program
}

// Catalog is loaded once at startup and never mutated afterwards.
type Catalog struct {
	Lenders []Lender
}
