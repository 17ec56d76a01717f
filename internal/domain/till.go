package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TillMode string

const (
	TillCash   TillMode = "cash"
	TillOnline TillMode = "online"
)

// TillModes lists till modes in lock order.
var TillModes = []TillMode{TillCash, TillOnline}

// Till holds the company's running totals per settlement channel.
type Till struct {
	Cash      decimal.Decimal `json:"cash"`
	Online    decimal.Decimal `json:"online"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (t *Till) Balance(mode TillMode) decimal.Decimal {
	if mode == TillOnline {
		return t.Online
	}
	return t.Cash
}

func (t *Till) Set(mode TillMode, v decimal.Decimal) {
	if mode == TillOnline {
		t.Online = v
		return
	}
	t.Cash = v
}

func (t *Till) Total() decimal.Decimal {
	return t.Cash.Add(t.Online)
}
