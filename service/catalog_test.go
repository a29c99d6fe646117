package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk/domain"
	"dealdesk/repository"
)

func loadSampleCatalog(t *testing.T) domain.Catalog {
	t.Helper()
	raw, err := repository.NewFileCatalogSource("../testdata/lenders.json").Load(context.Background())
	require.NoError(t, err)
	catalog, err := BuildCatalog(raw)
	require.NoError(t, err)
	return catalog
}

func findLender(t *testing.T, c domain.Catalog, id string) domain.Lender {
	t.Helper()
	for _, l := range c.Lenders {
		if l.ID == id {
			return l
		}
	}
	t.Fatalf("lender %s not found", id)
	return domain.Lender{}
}

func TestBuildCatalog_SampleDatabase(t *testing.T) {
	c := loadSampleCatalog(t)

	ids := make([]string, 0, len(c.Lenders))
	for _, l := range c.Lenders {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"acme_capital", "arc_home", "harbor_bank", "summit_lending"}, ids)

	acme := findLender(t, c, "acme_capital")
	assert.Equal(t, "Acme Capital", acme.DisplayName)
	assert.Equal(t, "(602) 555-0148", acme.Phone)
	assert.JSONEq(t, `"(602) 555-0199"`, string(acme.DepartmentContacts["scenario_desk"]))
	require.Len(t, acme.Programs, 2)

	dscr := acme.Programs[0]
	assert.Equal(t, "DSCR Rental", dscr.Name)
	assert.Equal(t, domain.ProgramSourceFlat, dscr.Source)
	assertFloatPtr(t, f(680), dscr.Terms.MinCreditScore)
	assertFloatPtr(t, f(80), dscr.Terms.MaxLTV)
	assertFloatPtr(t, f(2_000_000), dscr.Terms.MaxLoanAmount)

	flip := acme.Programs[1]
	assertFloatPtr(t, f(660), flip.Terms.MinCreditScore)
	assertFloatPtr(t, f(85), flip.Terms.MaxLTV)

	arc := findLender(t, c, "arc_home")
	require.Len(t, arc.Programs, 1)
	assert.Equal(t, domain.ProgramSourceTiered, arc.Programs[0].Source)
	require.Len(t, arc.Programs[0].Tiers, 3)
	assertFloatPtr(t, f(740), arc.Programs[0].Tiers[0].MinCreditScore)
	assertFloatPtr(t, f(1_000_000), arc.Programs[0].Tiers[2].MaxLoanAmount)

	summit := findLender(t, c, "summit_lending")
	assert.Empty(t, summit.Programs)
}

func TestBuildCatalog_KeyedOccupancyTerms(t *testing.T) {
	c := loadSampleCatalog(t)
	harbor := findLender(t, c, "harbor_bank")

	// portfolio_notes has no terms and is dropped
	require.Len(t, harbor.Programs, 1)
	p := harbor.Programs[0]
	assert.Equal(t, "conventional", p.Key)
	assert.Equal(t, "Conventional Investor", p.Name)
	assert.Equal(t, domain.ProgramSourceKeyed, p.Source)
	assert.Contains(t, p.Purpose, "investment")

	assertFloatPtr(t, f(620), p.Terms.MinCreditScore)
	assertFloatPtr(t, f(95), p.Terms.MaxLTV)
	assertFloatPtr(t, f(766_550), p.Terms.MaxLoanAmount)

	require.NotNil(t, p.InvestmentTerms)
	assertFloatPtr(t, f(680), p.InvestmentTerms.MinCreditScore)
	assertFloatPtr(t, f(75), p.InvestmentTerms.MaxLTV)
	assertFloatPtr(t, f(1_500_000), p.InvestmentTerms.MaxLoanAmount)
}

func TestBuildCatalog_ArrayOfLenders(t *testing.T) {
	c, err := DecodeCatalog([]byte(`{
		"lenders": [
			{"company_name": "Blue Oak Funding", "programs": [{"program_name": "Bridge", "max_ltv": "70%"}]},
			{"id": "cedar", "name": "Cedar Lending"}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, c.Lenders, 2)

	assert.Equal(t, "blue_oak_funding", c.Lenders[0].ID)
	require.Len(t, c.Lenders[0].Programs, 1)
	assert.Equal(t, "Bridge", c.Lenders[0].Programs[0].Name)
	assert.Equal(t, "cedar", c.Lenders[1].ID)
	assert.Equal(t, "Cedar Lending", c.Lenders[1].DisplayName)
}

func TestBuildCatalog_MissingLenders(t *testing.T) {
	_, err := BuildCatalog(map[string]any{"metadata": map[string]any{}})
	assert.True(t, errors.Is(err, ErrCatalogInvalid))

	_, err = BuildCatalog(nil)
	assert.True(t, errors.Is(err, ErrCatalogInvalid))

	_, err = DecodeCatalog([]byte(`{"lenders": `))
	assert.Error(t, err)
}

func TestFileCatalogSource_MissingFile(t *testing.T) {
	_, err := repository.NewFileCatalogSource(t.TempDir() + "/missing.json").Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
