package payments

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/checkout-ledger/internal/config"
	"github.com/joao-fontenele/checkout-ledger/internal/money"
)

// FeeRule is the processor charge for one payment method. Cap 0 means
// uncapped.
type FeeRule struct {
	Percent decimal.Decimal
	Flat    int64
	Cap     int64
}

// FeeSchedule maps payment method names to their fee rule. Methods without
// a rule are free.
type FeeSchedule struct {
	rules map[string]FeeRule
}

func NewFeeSchedule(rules map[string]FeeRule) *FeeSchedule {
	return &FeeSchedule{rules: rules}
}

// FeeScheduleFromConfig parses the configured percentages.
func FeeScheduleFromConfig(fees map[string]config.FeeConfig) (*FeeSchedule, error) {
	rules := make(map[string]FeeRule, len(fees))
	for method, fc := range fees {
		pct := decimal.Zero
		if fc.Percent != "" {
			var err error
			pct, err = decimal.NewFromString(fc.Percent)
			if err != nil {
				return nil, fmt.Errorf("fees.%s.percent: %w", method, err)
			}
		}
		if pct.IsNegative() || fc.Flat < 0 || fc.Cap < 0 {
			return nil, fmt.Errorf("fees.%s: values must not be negative", method)
		}
		rules[method] = FeeRule{Percent: pct, Flat: fc.Flat, Cap: fc.Cap}
	}
	return NewFeeSchedule(rules), nil
}

// Fee returns the fee and the net amount for a payment of amount minor
// units. The fee never exceeds the amount.
func (s *FeeSchedule) Fee(method string, amount int64) (fee, net int64) {
	if s == nil {
		return 0, amount
	}
	rule, ok := s.rules[method]
	if !ok {
		return 0, amount
	}

	fee = money.Percent(amount, rule.Percent) + rule.Flat
	if rule.Cap > 0 && fee > rule.Cap {
		fee = rule.Cap
	}
	if fee > amount {
		fee = amount
	}
	return fee, amount - fee
}
