package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBalanceFromTotals(t *testing.T) {
	cases := []struct {
		name    string
		nature  AccountNature
		debits  string
		credits string
		want    string
	}{
		{"asset nets debits minus credits", AccountNatureAsset, "500", "200", "300"},
		{"expense nets debits minus credits", AccountNatureExpense, "120", "20", "100"},
		{"liability nets credits minus debits", AccountNatureLiability, "200", "500", "300"},
		{"equity nets credits minus debits", AccountNatureEquity, "0", "1000", "1000"},
		{"income nets credits minus debits", AccountNatureIncome, "50", "400", "350"},
		{"asset can go negative", AccountNatureAsset, "100", "250", "-150"},
		{"liability can go negative", AccountNatureLiability, "250", "100", "-150"},
		{"empty slice balances to zero", AccountNatureAsset, "0", "0", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BalanceFromTotals(tc.nature, dec(tc.debits), dec(tc.credits))
			if !got.Equal(dec(tc.want)) {
				t.Errorf("BalanceFromTotals(%s, %s, %s) = %s, want %s",
					tc.nature, tc.debits, tc.credits, got.String(), tc.want)
			}
		})
	}
}

func TestClampZero(t *testing.T) {
	if got := ClampZero(dec("-25")); !got.IsZero() {
		t.Errorf("ClampZero(-25) = %s, want 0", got.String())
	}
	if got := ClampZero(dec("25")); !got.Equal(dec("25")) {
		t.Errorf("ClampZero(25) = %s, want 25", got.String())
	}
	if got := ClampZero(decimal.Zero); !got.IsZero() {
		t.Errorf("ClampZero(0) = %s, want 0", got.String())
	}
}

func TestDebitIncreases(t *testing.T) {
	debitNormal := map[AccountNature]bool{
		AccountNatureAsset:     true,
		AccountNatureExpense:   true,
		AccountNatureLiability: false,
		AccountNatureEquity:    false,
		AccountNatureIncome:    false,
	}
	for nature, want := range debitNormal {
		if got := nature.DebitIncreases(); got != want {
			t.Errorf("%s.DebitIncreases() = %v, want %v", nature, got, want)
		}
	}
}

func TestTransactionTypeReversal(t *testing.T) {
	rev := TransactionTypeLoanIssue.Reversal()
	if rev != "loan_issue_reversal" {
		t.Errorf("Reversal() = %s, want loan_issue_reversal", rev)
	}
	if !rev.IsReversal() {
		t.Error("reversal type not detected as reversal")
	}
	if TransactionTypeLoanIssue.IsReversal() {
		t.Error("base type wrongly detected as reversal")
	}
}
