package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Account names a balance a delta applies to.
type Account string

const (
	AccountTillCash   Account = "till_cash"
	AccountTillOnline Account = "till_online"
	AccountWallet     Account = "wallet"
	AccountCreditUsed Account = "credit_used"
)

// TillAccount maps a till mode to its account.
func TillAccount(mode TillMode) Account {
	if mode == TillOnline {
		return AccountTillOnline
	}
	return AccountTillCash
}

func (a Account) IsTill() bool {
	return a == AccountTillCash || a == AccountTillOnline
}

func (a Account) TillMode() TillMode {
	if a == AccountTillOnline {
		return TillOnline
	}
	return TillCash
}

// Delta is a signed change to one balance. EntityID is zero for till accounts.
type Delta struct {
	Account  Account         `json:"account"`
	EntityID int64           `json:"entity_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// Deltas is the effect of a transaction: the exact balance changes it causes.
type Deltas []Delta

type deltaKey struct {
	account  Account
	entityID int64
}

// Net merges deltas on the same balance, drops zero results and orders the
// result deterministically (till accounts first, then by entity and account).
func (d Deltas) Net() Deltas {
	sums := make(map[deltaKey]decimal.Decimal, len(d))
	for _, x := range d {
		k := deltaKey{x.Account, x.EntityID}
		sums[k] = sums[k].Add(x.Amount)
	}

	out := make(Deltas, 0, len(sums))
	for k, v := range sums {
		if v.IsZero() {
			continue
		}
		out = append(out, Delta{Account: k.account, EntityID: k.entityID, Amount: v})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Account < out[j].Account
	})
	return out
}

// Negate returns the exact reversal of d.
func (d Deltas) Negate() Deltas {
	out := make(Deltas, len(d))
	for i, x := range d {
		out[i] = Delta{Account: x.Account, EntityID: x.EntityID, Amount: x.Amount.Neg()}
	}
	return out
}

// Sub returns d - other, netted.
func (d Deltas) Sub(other Deltas) Deltas {
	all := make(Deltas, 0, len(d)+len(other))
	all = append(all, d...)
	all = append(all, other.Negate()...)
	return all.Net()
}

// Add returns d + other, netted.
func (d Deltas) Add(other Deltas) Deltas {
	all := make(Deltas, 0, len(d)+len(other))
	all = append(all, d...)
	all = append(all, other...)
	return all.Net()
}

func (d Deltas) IsZero() bool {
	return len(d.Net()) == 0
}

// Sum returns the total change to one balance.
func (d Deltas) Sum(account Account, entityID int64) decimal.Decimal {
	total := decimal.Zero
	for _, x := range d {
		if x.Account == account && x.EntityID == entityID {
			total = total.Add(x.Amount)
		}
	}
	return total
}

func (d Deltas) CompanyCash() decimal.Decimal   { return d.Sum(AccountTillCash, 0) }
func (d Deltas) CompanyOnline() decimal.Decimal { return d.Sum(AccountTillOnline, 0) }

func (d Deltas) Wallet(entityID int64) decimal.Decimal {
	return d.Sum(AccountWallet, entityID)
}

func (d Deltas) CreditUsed(entityID int64) decimal.Decimal {
	return d.Sum(AccountCreditUsed, entityID)
}

// EntityIDs returns the entities touched by d in ascending order.
func (d Deltas) EntityIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, x := range d {
		if x.Account.IsTill() || seen[x.EntityID] {
			continue
		}
		seen[x.EntityID] = true
		ids = append(ids, x.EntityID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TillModes returns the till modes touched by d in lock order.
func (d Deltas) TillModes() []TillMode {
	var modes []TillMode
	for _, m := range TillModes {
		for _, x := range d {
			if x.Account == TillAccount(m) {
				modes = append(modes, m)
				break
			}
		}
	}
	return modes
}

func (d Deltas) Value() (driver.Value, error) {
	if d == nil {
		d = Deltas{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Deltas) Scan(src any) error {
	return scanJSON(src, d)
}

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
