package reconciler

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-extractor/internal/schema"
)

// continuityTolerance absorbs rounding noise in model-reported balances.
var continuityTolerance = decimal.NewFromFloat(0.01)

// CheckContinuity verifies the accounting invariant linking consecutive
// rows under the declared date order:
//
//	ascending:  balance[n] == balance[n-1] + credit[n] - debit[n]
//	descending: balance[n-1] == balance[n] + credit[n-1] - debit[n-1]
//
// In a descending table the earlier row is the later transaction, so its own
// amounts explain the jump from the row below it. It returns the indices of
// rows that break the invariant (the lower row of each failing pair).
func CheckContinuity(records []schema.Record, order schema.DateOrder) []int {
	var failures []int
	for n := 1; n < len(records); n++ {
		prev, cur := records[n-1], records[n]

		prevBal := decimal.NewFromFloat(float64(prev.Balance))
		curBal := decimal.NewFromFloat(float64(cur.Balance))

		var want, got decimal.Decimal
		if order == schema.Descending {
			want = prevBal
			got = curBal.
				Add(decimal.NewFromFloat(float64(prev.Credit))).
				Sub(decimal.NewFromFloat(float64(prev.Debit)))
		} else {
			want = curBal
			got = prevBal.
				Add(decimal.NewFromFloat(float64(cur.Credit))).
				Sub(decimal.NewFromFloat(float64(cur.Debit)))
		}

		if want.Sub(got).Abs().GreaterThan(continuityTolerance) {
			failures = append(failures, n)
		}
	}
	return failures
}
