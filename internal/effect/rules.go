package effect

import (
	"fmt"
	"strings"

	"tripledger/internal/domain"
)

// role is how the entity on the subject side of a transaction is treated.
type role uint8

const (
	roleNone   role = iota // no entity, external party
	roleClient             // customer, partner or other
	roleAgent
)

// channel is the settlement channel of a mode.
type channel uint8

const (
	chanNone channel = iota
	chanTill
	chanWallet
	chanCredit
	chanService
)

type flag uint8

const (
	flagNone flag = iota
	flagCredit
	flagDeduct
)

type purpose uint8

const (
	purposeGeneral purpose = iota
	purposeDeposit
	purposeWithdrawal
	purposeBooking
)

// ruleKey enumerates every supported combination of descriptor attributes.
type ruleKey struct {
	txn     domain.TxnType
	dir     domain.Direction
	role    role
	channel channel
	to      channel
	flag    flag
	purpose purpose
}

type party uint8

const (
	partyCompany party = iota
	partySubject
	partyFrom
	partyTo
)

type slot uint8

const (
	slotTill slot = iota
	slotWallet
	slotCredit
)

// posting is a template; the resolver fills in the entity, till mode and amount.
type posting struct {
	party party
	slot  slot
	sign  int64
}

var (
	tillIn  = posting{partyCompany, slotTill, +1}
	tillOut = posting{partyCompany, slotTill, -1}
)

func subject(s slot, sign int64) posting  { return posting{partySubject, s, sign} }
func fromAcct(s slot, sign int64) posting { return posting{partyFrom, s, sign} }
func toAcct(s slot, sign int64) posting   { return posting{partyTo, s, sign} }

const (
	payment  = domain.TxnPayment
	receipt  = domain.TxnReceipt
	refund   = domain.TxnRefund
	transfer = domain.TxnWalletTransfer
	dirIn    = domain.DirectionIncoming
	dirOut   = domain.DirectionOutgoing
)

// rules is the single rule set. A combination missing here is rejected.
//
// Sign conventions: wallet is what the entity holds with the company,
// credit_used of a customer is what the customer owes, credit_used of an
// agent is what the company owes the agent.
var rules = map[ruleKey][]posting{
	// payment: company pays out of the till.
	{txn: payment, role: roleNone, channel: chanTill}:                                  {tillOut},
	{txn: payment, role: roleClient, channel: chanTill}:                                {tillOut},
	{txn: payment, role: roleAgent, channel: chanTill}:                                 {tillOut},
	{txn: payment, role: roleClient, channel: chanTill, flag: flagDeduct}:              {tillOut, subject(slotWallet, -1)},
	{txn: payment, role: roleAgent, channel: chanTill, flag: flagDeduct}:               {tillOut, subject(slotWallet, -1)},
	{txn: payment, role: roleNone, channel: chanTill, purpose: purposeDeposit}:         {tillOut},
	{txn: payment, role: roleClient, channel: chanTill, purpose: purposeDeposit}:       {tillOut},
	{txn: payment, role: roleClient, channel: chanTill, flag: flagDeduct, purpose: purposeDeposit}: {tillOut, subject(slotWallet, -1)},
	{txn: payment, role: roleAgent, channel: chanTill, purpose: purposeDeposit}:        {tillOut, subject(slotCredit, -1)},
	{txn: payment, role: roleAgent, channel: chanTill, flag: flagDeduct, purpose: purposeDeposit}: {tillOut, subject(slotCredit, -1)},
	{txn: payment, role: roleClient, channel: chanTill, purpose: purposeWithdrawal}:    {tillOut, subject(slotWallet, -1)},
	{txn: payment, role: roleClient, channel: chanTill, flag: flagDeduct, purpose: purposeWithdrawal}: {tillOut, subject(slotWallet, -1)},
	{txn: payment, role: roleAgent, channel: chanTill, purpose: purposeWithdrawal}:     {tillOut, subject(slotWallet, -1)},
	{txn: payment, role: roleAgent, channel: chanTill, flag: flagDeduct, purpose: purposeWithdrawal}: {tillOut, subject(slotWallet, -1)},
	// booking agent legs
	{txn: payment, role: roleAgent, channel: chanTill, purpose: purposeBooking}:   {tillOut},
	{txn: payment, role: roleAgent, channel: chanWallet, purpose: purposeBooking}: {subject(slotWallet, -1)},
	{txn: payment, role: roleAgent, channel: chanCredit, purpose: purposeBooking}: {subject(slotCredit, +1)},

	// receipt: money into the till.
	{txn: receipt, role: roleNone, channel: chanTill}:                     {tillIn},
	{txn: receipt, role: roleClient, channel: chanTill}:                   {tillIn},
	{txn: receipt, role: roleAgent, channel: chanTill}:                    {tillIn},
	{txn: receipt, role: roleClient, channel: chanTill, flag: flagCredit}: {tillIn, subject(slotWallet, +1)},
	// booking customer legs
	{txn: receipt, role: roleClient, channel: chanTill, purpose: purposeBooking}:   {tillIn},
	{txn: receipt, role: roleClient, channel: chanWallet, purpose: purposeBooking}: {subject(slotWallet, -1)},
	{txn: receipt, role: roleClient, channel: chanCredit, purpose: purposeBooking}: {subject(slotCredit, +1)},

	// refund outgoing: company to entity, channel is mode_from.
	{txn: refund, dir: dirOut, role: roleNone, channel: chanTill}:                         {tillOut},
	{txn: refund, dir: dirOut, role: roleClient, channel: chanTill}:                       {tillOut},
	{txn: refund, dir: dirOut, role: roleAgent, channel: chanTill}:                        {tillOut},
	{txn: refund, dir: dirOut, role: roleAgent, channel: chanTill, flag: flagCredit}:      {tillOut, subject(slotCredit, -1)},
	{txn: refund, dir: dirOut, role: roleAgent, channel: chanTill, flag: flagDeduct}:      {tillOut, subject(slotCredit, +1)},
	{txn: refund, dir: dirOut, role: roleClient, channel: chanService, flag: flagCredit}:  {subject(slotWallet, +1)},
	{txn: refund, dir: dirOut, role: roleClient, channel: chanService, flag: flagDeduct}:  {subject(slotWallet, -1)},
	{txn: refund, dir: dirOut, role: roleAgent, channel: chanService, flag: flagCredit}:   {subject(slotCredit, -1)},
	{txn: refund, dir: dirOut, role: roleAgent, channel: chanService, flag: flagDeduct}:   {subject(slotCredit, +1)},
	{txn: refund, dir: dirOut, role: roleClient, channel: chanWallet}:                     {subject(slotWallet, +1)},
	{txn: refund, dir: dirOut, role: roleClient, channel: chanCredit}:                     {subject(slotCredit, -1)},

	// refund incoming: entity to company, channel is the entity side (mode_from).
	{txn: refund, dir: dirIn, role: roleNone, channel: chanTill}:     {tillIn},
	{txn: refund, dir: dirIn, role: roleClient, channel: chanTill}:   {tillIn},
	{txn: refund, dir: dirIn, role: roleAgent, channel: chanTill}:    {tillIn},
	{txn: refund, dir: dirIn, role: roleClient, channel: chanWallet}: {subject(slotWallet, -1)},
	{txn: refund, dir: dirIn, role: roleClient, channel: chanCredit}: {subject(slotCredit, +1)},
	{txn: refund, dir: dirIn, role: roleAgent, channel: chanWallet}:  {subject(slotWallet, +1)},
	{txn: refund, dir: dirIn, role: roleAgent, channel: chanCredit}:  {subject(slotCredit, -1)},

	// wallet_transfer: entity to entity, never touches the till.
	{txn: transfer, channel: chanWallet, to: chanWallet}: {fromAcct(slotWallet, -1), toAcct(slotWallet, +1)},
	{txn: transfer, channel: chanWallet, to: chanCredit}: {fromAcct(slotWallet, -1), toAcct(slotCredit, -1)},
	{txn: transfer, channel: chanCredit, to: chanWallet}: {fromAcct(slotCredit, +1), toAcct(slotWallet, +1)},
	{txn: transfer, channel: chanCredit, to: chanCredit}: {fromAcct(slotCredit, +1), toAcct(slotCredit, -1)},
}

func (r role) String() string {
	switch r {
	case roleClient:
		return "client"
	case roleAgent:
		return "agent"
	}
	return "no entity"
}

func (c channel) String() string {
	switch c {
	case chanTill:
		return "till"
	case chanWallet:
		return "wallet"
	case chanCredit:
		return "credit"
	case chanService:
		return "service_availed"
	}
	return "none"
}

func (k ruleKey) String() string {
	parts := []string{string(k.txn)}
	if k.dir != "" {
		parts = append(parts, string(k.dir))
	}
	if k.txn != transfer {
		parts = append(parts, k.role.String())
	}
	parts = append(parts, "via "+k.channel.String())
	if k.to != chanNone {
		parts = append(parts, "to "+k.to.String())
	}
	switch k.flag {
	case flagCredit:
		parts = append(parts, "with credit_to_account")
	case flagDeduct:
		parts = append(parts, "with deduct_from_account")
	}
	switch k.purpose {
	case purposeDeposit:
		parts = append(parts, "for cash_deposit")
	case purposeWithdrawal:
		parts = append(parts, "for cash_withdrawal")
	case purposeBooking:
		parts = append(parts, "for service_availed")
	}
	return strings.Join(parts, " ")
}

func channelOf(m domain.Mode) channel {
	switch m {
	case domain.ModeCash, domain.ModeOnline:
		return chanTill
	case domain.ModeWallet:
		return chanWallet
	case domain.ModeCredit:
		return chanCredit
	case domain.ModeServiceAvailed:
		return chanService
	}
	return chanNone
}

func roleOf(p *Party) role {
	switch {
	case p == nil:
		return roleNone
	case p.Kind == domain.KindAgent:
		return roleAgent
	default:
		return roleClient
	}
}

func purposeOf(t domain.TxnType, pt domain.PayType) purpose {
	if t != payment && t != receipt {
		return purposeGeneral
	}
	switch pt {
	case domain.PayCashDeposit:
		return purposeDeposit
	case domain.PayCashWithdrawal:
		return purposeWithdrawal
	case domain.PayServiceAvailed:
		return purposeBooking
	}
	return purposeGeneral
}

func (k ruleKey) unsupported() string {
	return fmt.Sprintf("%s is not supported", k)
}
