package account

import (
	"fmt"

	"tripledger/internal/domain"
)

// Policy holds the company-wide balance rules. Per-entity rules live on the
// entity itself (allow_negative_wallet, credit_limit).
type Policy struct {
	AllowNegativeTill bool
}

// Apply adds deltas to the locked balances in place. It returns a warning
// for every balance a delta pushes further outside policy; balances already
// outside policy that a delta improves are not reported.
func Apply(deltas domain.Deltas, entities map[int64]*domain.Entity, till *domain.Till, p Policy) (domain.PolicyWarnings, error) {
	var warnings domain.PolicyWarnings

	for _, d := range deltas.Net() {
		if d.Account.IsTill() {
			if till == nil {
				return nil, fmt.Errorf("till %s not locked", d.Account.TillMode())
			}
			mode := d.Account.TillMode()
			next := till.Balance(mode).Add(d.Amount)
			till.Set(mode, next)
			if d.Amount.IsNegative() && next.IsNegative() && !p.AllowNegativeTill {
				warnings = append(warnings, domain.PolicyWarning{
					Code:    domain.WarnNegativeTill,
					Account: d.Account,
					Balance: next,
					Message: fmt.Sprintf("%s till would be %s", mode, next.StringFixed(2)),
				})
			}
			continue
		}

		e, ok := entities[d.EntityID]
		if !ok {
			return nil, fmt.Errorf("entity %d not locked: %w", d.EntityID, domain.ErrNotFound)
		}

		switch d.Account {
		case domain.AccountWallet:
			e.WalletBalance = e.WalletBalance.Add(d.Amount)
			if d.Amount.IsNegative() && e.WalletBalance.IsNegative() && !e.AllowNegativeWallet {
				warnings = append(warnings, domain.PolicyWarning{
					Code:     domain.WarnNegativeWallet,
					Account:  d.Account,
					EntityID: e.ID,
					Balance:  e.WalletBalance,
					Message:  fmt.Sprintf("wallet of %s (%d) would be %s", e.Name, e.ID, e.WalletBalance.StringFixed(2)),
				})
			}
		case domain.AccountCreditUsed:
			e.CreditUsed = e.CreditUsed.Add(d.Amount)
			switch {
			case d.Amount.IsPositive() && e.CreditUsed.GreaterThan(e.CreditLimit):
				warnings = append(warnings, domain.PolicyWarning{
					Code:     domain.WarnCreditLimit,
					Account:  d.Account,
					EntityID: e.ID,
					Balance:  e.CreditUsed,
					Limit:    e.CreditLimit,
					Message: fmt.Sprintf("credit used of %s (%d) would be %s over limit %s",
						e.Name, e.ID, e.CreditUsed.StringFixed(2), e.CreditLimit.StringFixed(2)),
				})
			case d.Amount.IsNegative() && e.CreditUsed.IsNegative():
				warnings = append(warnings, domain.PolicyWarning{
					Code:     domain.WarnNegativeCreditUse,
					Account:  d.Account,
					EntityID: e.ID,
					Balance:  e.CreditUsed,
					Message:  fmt.Sprintf("credit used of %s (%d) would be %s", e.Name, e.ID, e.CreditUsed.StringFixed(2)),
				})
			}
		default:
			return nil, fmt.Errorf("unknown account %q", d.Account)
		}
	}

	return warnings, nil
}
