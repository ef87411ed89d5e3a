package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAllocate(t *testing.T) {
	cases := []struct {
		name          string
		amount        string
		outstanding   Outstanding
		policy        models.AllocationPolicy
		wantCharges   string
		wantInterest  string
		wantPrincipal string
		wantRemaining string
	}{
		{
			name:          "interest first covers interest then principal",
			amount:        "150",
			outstanding:   Outstanding{Charges: d("0"), Interest: d("100"), Principal: d("500")},
			policy:        models.AllocationInterestFirst,
			wantCharges:   "0",
			wantInterest:  "100",
			wantPrincipal: "50",
			wantRemaining: "0",
		},
		{
			name:          "principal first covers principal then interest",
			amount:        "150",
			outstanding:   Outstanding{Charges: d("0"), Interest: d("100"), Principal: d("120")},
			policy:        models.AllocationPrincipalFirst,
			wantCharges:   "0",
			wantInterest:  "30",
			wantPrincipal: "120",
			wantRemaining: "0",
		},
		{
			name:          "charges settle before either policy bucket",
			amount:        "50",
			outstanding:   Outstanding{Charges: d("40"), Interest: d("100"), Principal: d("500")},
			policy:        models.AllocationInterestFirst,
			wantCharges:   "40",
			wantInterest:  "10",
			wantPrincipal: "0",
			wantRemaining: "0",
		},
		{
			name:          "pro rata splits by outstanding proportion",
			amount:        "40",
			outstanding:   Outstanding{Charges: d("0"), Interest: d("100"), Principal: d("300")},
			policy:        models.AllocationProRata,
			wantCharges:   "0",
			wantInterest:  "10",
			wantPrincipal: "30",
			wantRemaining: "0",
		},
		{
			name:          "pro rata rounding residue lands on principal",
			amount:        "10",
			outstanding:   Outstanding{Charges: d("0"), Interest: d("100"), Principal: d("200")},
			policy:        models.AllocationProRata,
			wantCharges:   "0",
			wantInterest:  "3.3333",
			wantPrincipal: "6.6667",
			wantRemaining: "0",
		},
		{
			name:          "overpayment surfaces the excess",
			amount:        "1000",
			outstanding:   Outstanding{Charges: d("20"), Interest: d("80"), Principal: d("400")},
			policy:        models.AllocationInterestFirst,
			wantCharges:   "20",
			wantInterest:  "80",
			wantPrincipal: "400",
			wantRemaining: "500",
		},
		{
			name:          "pro rata overpayment caps at total outstanding",
			amount:        "500",
			outstanding:   Outstanding{Charges: d("0"), Interest: d("100"), Principal: d("300")},
			policy:        models.AllocationProRata,
			wantCharges:   "0",
			wantInterest:  "100",
			wantPrincipal: "300",
			wantRemaining: "100",
		},
		{
			name:          "payment against settled loan is all remaining",
			amount:        "75",
			outstanding:   Outstanding{},
			policy:        models.AllocationPrincipalFirst,
			wantCharges:   "0",
			wantInterest:  "0",
			wantPrincipal: "0",
			wantRemaining: "75",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc, err := Allocate(d(tc.amount), tc.outstanding, tc.policy)
			if err != nil {
				t.Fatalf("Allocate returned error: %v", err)
			}
			checks := []struct {
				label string
				got   decimal.Decimal
				want  string
			}{
				{"charges", alloc.ChargesPayment, tc.wantCharges},
				{"interest", alloc.InterestPayment, tc.wantInterest},
				{"principal", alloc.PrincipalPayment, tc.wantPrincipal},
				{"remaining", alloc.RemainingAmount, tc.wantRemaining},
			}
			for _, c := range checks {
				if !c.got.Equal(d(c.want)) {
					t.Errorf("%s = %s, want %s", c.label, c.got.String(), c.want)
				}
			}
			posted := alloc.ChargesPayment.Add(alloc.InterestPayment).Add(alloc.PrincipalPayment)
			if !posted.Add(alloc.RemainingAmount).Equal(d(tc.amount)) {
				t.Errorf("allocation does not conserve amount: posted %s + remaining %s != %s",
					posted.String(), alloc.RemainingAmount.String(), tc.amount)
			}
		})
	}
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	outstanding := Outstanding{Interest: d("10"), Principal: d("20")}
	for _, amount := range []string{"0", "-5"} {
		if _, err := Allocate(d(amount), outstanding, models.AllocationInterestFirst); err == nil {
			t.Errorf("Allocate(%s) expected error, got nil", amount)
		}
	}
}

func TestAllocateRejectsUnknownPolicy(t *testing.T) {
	_, err := Allocate(d("10"), Outstanding{Principal: d("10")}, models.AllocationPolicy("newest_first"))
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
