// Package effect turns a transaction descriptor into the exact balance
// changes it causes. It is pure: no store access, no clock, no globals beyond
// the rule table.
package effect

import (
	"fmt"

	"tripledger/internal/domain"

	"github.com/shopspring/decimal"
)

// Party is an entity taking part in a transaction, with the kind that decides
// which rule applies to it.
type Party struct {
	ID   int64
	Kind domain.EntityKind
}

// Descriptor is everything the resolver needs to know about a transaction.
type Descriptor struct {
	Type      domain.TxnType
	Amount    decimal.Decimal
	PayType   domain.PayType
	Mode      domain.Mode
	ModeFrom  domain.Mode
	ModeTo    domain.Mode
	Direction domain.Direction
	Deduct    bool
	Credit    bool
	Entity    *Party
	From      *Party
	To        *Party
}

// NewDescriptor builds a descriptor from an input, looking up the kind of
// every referenced entity. Entities missing from kinds resolve as kind "".
func NewDescriptor(in domain.TransactionInput, kinds map[int64]domain.EntityKind) Descriptor {
	p := func(id *int64) *Party {
		if id == nil {
			return nil
		}
		return &Party{ID: *id, Kind: kinds[*id]}
	}
	return Descriptor{
		Type:      in.Type,
		Amount:    in.Amount,
		PayType:   in.PayType,
		Mode:      in.Mode,
		ModeFrom:  in.ModeFrom,
		ModeTo:    in.ModeTo,
		Direction: in.Direction,
		Deduct:    in.DeductFromAccount,
		Credit:    in.CreditToAccount,
		Entity:    p(in.EntityID),
		From:      p(in.FromEntityID),
		To:        p(in.ToEntityID),
	}
}

// Resolve computes the effect of d. The result is netted and ordered, so the
// same descriptor always yields the same deltas.
func Resolve(d Descriptor) (domain.Deltas, error) {
	if !d.Amount.IsPositive() {
		return nil, domain.NewFieldError("amount", "must be greater than zero")
	}
	if d.Deduct && d.Credit {
		return nil, domain.NewFieldError("credit_to_account", "cannot be combined with deduct_from_account")
	}

	key := keyOf(d)
	templates, ok := rules[key]
	if !ok {
		return nil, domain.NewFieldError(offendingField(d, key), key.unsupported())
	}

	out := make(domain.Deltas, 0, len(templates))
	for _, t := range templates {
		amount := d.Amount.Mul(decimal.NewFromInt(t.sign))
		if t.party == partyCompany {
			out = append(out, domain.Delta{Account: domain.TillAccount(tillMode(d)), Amount: amount})
			continue
		}

		p, field := partyOf(d, t.party)
		if p == nil {
			return nil, domain.NewFieldError(field, "is required")
		}

		account := domain.AccountWallet
		if t.slot == slotCredit {
			if !p.Kind.HasCreditLine() {
				return nil, domain.NewFieldError(field, fmt.Sprintf("entity %d (%s) has no credit line", p.ID, p.Kind))
			}
			account = domain.AccountCreditUsed
		}
		out = append(out, domain.Delta{Account: account, EntityID: p.ID, Amount: amount})
	}

	return out.Net(), nil
}

func keyOf(d Descriptor) ruleKey {
	k := ruleKey{
		txn:     d.Type,
		purpose: purposeOf(d.Type, d.PayType),
	}
	switch {
	case d.Credit:
		k.flag = flagCredit
	case d.Deduct:
		k.flag = flagDeduct
	}

	switch d.Type {
	case payment, receipt:
		k.role = roleOf(d.Entity)
		k.channel = channelOf(d.Mode)
	case refund:
		k.dir = d.Direction
		k.role = roleOf(subjectOf(d))
		k.channel = channelOf(d.ModeFrom)
	case transfer:
		k.channel = channelOf(orWallet(d.ModeFrom))
		k.to = channelOf(orWallet(d.ModeTo))
	}
	return k
}

func orWallet(m domain.Mode) domain.Mode {
	if m == "" {
		return domain.ModeWallet
	}
	return m
}

// subjectOf returns the entity on the other side of the company.
func subjectOf(d Descriptor) *Party {
	switch d.Type {
	case refund:
		if d.Direction == dirIn {
			return d.From
		}
		return d.To
	default:
		return d.Entity
	}
}

func subjectField(d Descriptor) string {
	switch d.Type {
	case refund:
		if d.Direction == dirIn {
			return "from_entity_id"
		}
		return "to_entity_id"
	default:
		return "entity_id"
	}
}

func partyOf(d Descriptor, p party) (*Party, string) {
	switch p {
	case partyFrom:
		return d.From, "from_entity_id"
	case partyTo:
		return d.To, "to_entity_id"
	default:
		return subjectOf(d), subjectField(d)
	}
}

// tillMode picks the till a company posting settles through.
func tillMode(d Descriptor) domain.TillMode {
	if d.Type == refund {
		if d.Direction == dirIn && d.ModeTo.IsTill() {
			return d.ModeTo.TillMode()
		}
		return d.ModeFrom.TillMode()
	}
	return d.Mode.TillMode()
}

func offendingField(d Descriptor, k ruleKey) string {
	switch {
	case k.txn == refund && k.channel == chanService && k.role == roleNone:
		return subjectField(d)
	case k.flag == flagCredit:
		return "credit_to_account"
	case k.flag == flagDeduct:
		return "deduct_from_account"
	case k.txn == transfer:
		return "mode_to"
	case k.purpose == purposeWithdrawal && k.role == roleNone:
		return subjectField(d)
	case k.txn == refund:
		return "mode_from"
	}
	return "mode"
}
