package booking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/store"
	boltstore "tripledger/internal/store/bolt"
	"tripledger/internal/transaction"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 8, 14, 11, 0, 0, 0, time.UTC)

type fixture struct {
	st  *boltstore.Store
	p   *transaction.Processor
	svc Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := boltstore.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := func() time.Time { return testNow }
	p := transaction.NewProcessor(st, transaction.WithClock(clock))
	svc := NewService(st, p)
	svc.(*service).now = clock
	return &fixture{st: st, p: p, svc: svc}
}

func (f *fixture) entity(t *testing.T, kind domain.EntityKind, name string) int64 {
	t.Helper()
	e := &domain.Entity{Kind: kind, Name: name, Active: true, CreditLimit: decimal.NewFromInt(10000)}
	err := f.st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEntity(ctx, e)
	})
	require.NoError(t, err)
	return e.ID
}

// fund puts amount into the cash till and, with an entity, into its wallet.
func (f *fixture) fund(t *testing.T, entityID *int64, amount string) {
	t.Helper()
	_, err := f.p.Create(context.Background(), domain.TransactionInput{
		Type:            domain.TxnReceipt,
		Date:            date(2025, 1, 1),
		Amount:          money(amount),
		EntityID:        entityID,
		Mode:            domain.ModeCash,
		CreditToAccount: entityID != nil,
	}, domain.Options{})
	require.NoError(t, err)
}

type balances struct {
	cash, online decimal.Decimal
	wallet       map[int64]decimal.Decimal
	credit       map[int64]decimal.Decimal
}

func (f *fixture) snapshot(t *testing.T, ids ...int64) balances {
	t.Helper()
	ctx := context.Background()
	till, err := f.st.GetTill(ctx)
	require.NoError(t, err)

	b := balances{cash: till.Cash, online: till.Online, wallet: map[int64]decimal.Decimal{}, credit: map[int64]decimal.Decimal{}}
	for _, id := range ids {
		e, err := f.st.GetEntity(ctx, id)
		require.NoError(t, err)
		b.wallet[id] = e.WalletBalance
		b.credit[id] = e.CreditUsed
	}
	return b
}

func assertSameBalances(t *testing.T, want, got balances) {
	t.Helper()
	assert.True(t, want.cash.Equal(got.cash), "cash: want %s got %s", want.cash, got.cash)
	assert.True(t, want.online.Equal(got.online), "online: want %s got %s", want.online, got.online)
	for id := range want.wallet {
		assert.True(t, want.wallet[id].Equal(got.wallet[id]), "wallet of %d: want %s got %s", id, want.wallet[id], got.wallet[id])
		assert.True(t, want.credit[id].Equal(got.credit[id]), "credit of %d: want %s got %s", id, want.credit[id], got.credit[id])
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func ticket(customer, agent int64, charge, paid string, customerMode, agentMode domain.Mode) BookInput {
	return BookInput{
		Kind:                domain.BookingTicket,
		BookingDate:         date(2025, 8, 14),
		CustomerID:          customer,
		AgentID:             &agent,
		CustomerCharge:      money(charge),
		AgentPaid:           money(paid),
		CustomerPaymentMode: customerMode,
		AgentPaymentMode:    agentMode,
		PNR:                 "XK9P2L",
		Sector:              "DEL-BOM",
	}
}

func TestBook_TicketScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	agent := f.entity(t, domain.KindAgent, "Skyways")
	f.fund(t, &customer, "1000")
	before := f.snapshot(t, customer, agent)

	b, err := f.svc.Book(ctx, ticket(customer, agent, "500", "400", domain.ModeWallet, domain.ModeCash), domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00001", b.RefNo)
	assert.Equal(t, domain.BookingBooked, b.Status)
	assert.True(t, b.Profit().Equal(money("100")))
	require.NotNil(t, b.ChargeTxnID)
	require.NotNil(t, b.AgentTxnID)

	charge, err := f.st.GetTransaction(ctx, *b.ChargeTxnID)
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00001-C", charge.RefNo)
	assert.Equal(t, domain.LegCustomerCharge, charge.Leg)

	booked := f.snapshot(t, customer, agent)
	assert.True(t, booked.wallet[customer].Sub(before.wallet[customer]).Equal(money("-500")))
	assert.True(t, booked.cash.Sub(before.cash).Equal(money("-400")))

	b, err = f.svc.Cancel(ctx, b.ID, Settlement{
		RefundAmount: money("500"), RefundMode: domain.ModeWallet,
		RecoveryAmount: money("400"), RecoveryMode: domain.ModeCash,
	}, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.NotNil(t, b.CancelledAt)
	assert.Len(t, b.AppliedCancelDeltas, 2)

	assertSameBalances(t, before, f.snapshot(t, customer, agent))
}

func TestCancelThenDelete_NetsToNeverBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	agent := f.entity(t, domain.KindAgent, "Skyways")
	f.fund(t, nil, "5000")
	before := f.snapshot(t, customer, agent)

	b, err := f.svc.Book(ctx, ticket(customer, agent, "1200", "1000", domain.ModeCredit, domain.ModeCredit), domain.Options{})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, b.ID, Settlement{
		RefundAmount: money("700"), RefundMode: domain.ModeCash,
		RecoveryAmount: money("650.25"), RecoveryMode: domain.ModeOnline,
	}, domain.Options{})
	require.NoError(t, err)

	deleted, err := f.svc.Delete(ctx, b.ID, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingDeleted, deleted.Status)
	assert.NotNil(t, deleted.DeletedAt)

	assertSameBalances(t, before, f.snapshot(t, customer, agent))

	legs, err := f.st.ListTransactions(ctx, domain.TransactionFilter{BookingID: b.ID})
	require.NoError(t, err)
	require.Len(t, legs, 4)
	for _, leg := range legs {
		assert.Equal(t, domain.StatusReversed, leg.Status, leg.RefNo)
	}
}

func TestDelete_BookedReversesOriginalLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	f.fund(t, nil, "100")
	before := f.snapshot(t, customer)

	b, err := f.svc.Book(ctx, BookInput{
		Kind:                domain.BookingService,
		BookingDate:         date(2025, 8, 14),
		CustomerID:          customer,
		CustomerCharge:      money("80"),
		CustomerPaymentMode: domain.ModeOnline,
		ServiceName:         "Visa assistance",
	}, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, "2025/S/00001", b.RefNo)
	assert.Nil(t, b.AgentTxnID)

	_, err = f.svc.Delete(ctx, b.ID, domain.Options{})
	require.NoError(t, err)
	assertSameBalances(t, before, f.snapshot(t, customer))

	again, err := f.svc.Delete(ctx, b.ID, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingDeleted, again.Status)
	assertSameBalances(t, before, f.snapshot(t, customer))

	_, err = f.svc.Cancel(ctx, b.ID, Settlement{}, domain.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestEditCancelled_MovesBalancesByTheDifference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	agent := f.entity(t, domain.KindAgent, "Skyways")
	f.fund(t, nil, "5000")

	b, err := f.svc.Book(ctx, ticket(customer, agent, "900", "700", domain.ModeCash, domain.ModeCash), domain.Options{})
	require.NoError(t, err)
	b, err = f.svc.Cancel(ctx, b.ID, Settlement{
		RefundAmount: money("200"), RefundMode: domain.ModeCash,
		RecoveryAmount: money("100"), RecoveryMode: domain.ModeCash,
	}, domain.Options{})
	require.NoError(t, err)
	refundLeg := *b.RefundTxnID
	r1 := f.snapshot(t, customer, agent)

	b, err = f.svc.EditCancelled(ctx, b.ID, Settlement{
		RefundAmount: money("350"), RefundMode: domain.ModeCash,
		RecoveryAmount: money("100"), RecoveryMode: domain.ModeCash,
	}, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	assert.Equal(t, refundLeg, *b.RefundTxnID)
	assert.True(t, b.AppliedCancelDeltas.CompanyCash().Equal(money("-250")))

	r2 := f.snapshot(t, customer, agent)
	assert.True(t, r2.cash.Sub(r1.cash).Equal(money("-150")))
	assert.True(t, r2.wallet[customer].Equal(r1.wallet[customer]))

	leg, err := f.st.GetTransaction(ctx, refundLeg)
	require.NoError(t, err)
	assert.True(t, leg.Amount.Equal(money("350")))
	assert.Equal(t, domain.StatusActive, leg.Status)
}

func TestEditCancelled_LegsToAndFromZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	agent := f.entity(t, domain.KindAgent, "Skyways")
	f.fund(t, nil, "5000")

	b, err := f.svc.Book(ctx, ticket(customer, agent, "900", "700", domain.ModeCash, domain.ModeCash), domain.Options{})
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, b.ID, Settlement{RefundAmount: money("300"), RefundMode: domain.ModeCash}, domain.Options{})
	require.NoError(t, err)
	assert.Nil(t, cancelled.RecoveryTxnID)
	firstRefund := *cancelled.RefundTxnID
	afterCancel := f.snapshot(t, customer, agent)

	edited, err := f.svc.EditCancelled(ctx, b.ID, Settlement{RecoveryAmount: money("200"), RecoveryMode: domain.ModeCash}, domain.Options{})
	require.NoError(t, err)
	assert.Nil(t, edited.RefundTxnID)
	require.NotNil(t, edited.RecoveryTxnID)

	recovery, err := f.st.GetTransaction(ctx, *edited.RecoveryTxnID)
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00001-AR2", recovery.RefNo)

	old, err := f.st.GetTransaction(ctx, firstRefund)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReversed, old.Status)

	// +300 refund undone, +200 recovered.
	now := f.snapshot(t, customer, agent)
	assert.True(t, now.cash.Sub(afterCancel.cash).Equal(money("500")))

	edited, err = f.svc.EditCancelled(ctx, b.ID, Settlement{
		RefundAmount: money("300"), RefundMode: domain.ModeCash,
		RecoveryAmount: money("200"), RecoveryMode: domain.ModeCash,
	}, domain.Options{})
	require.NoError(t, err)
	refund, err := f.st.GetTransaction(ctx, *edited.RefundTxnID)
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00001-CR3", refund.RefNo)
}

func TestCancel_RepeatIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	agent := f.entity(t, domain.KindAgent, "Skyways")
	f.fund(t, nil, "5000")

	b, err := f.svc.Book(ctx, ticket(customer, agent, "500", "400", domain.ModeCash, domain.ModeCash), domain.Options{})
	require.NoError(t, err)
	settle := Settlement{RefundAmount: money("500"), RefundMode: domain.ModeCash, RecoveryAmount: money("400"), RecoveryMode: domain.ModeCash}

	first, err := f.svc.Cancel(ctx, b.ID, settle, domain.Options{})
	require.NoError(t, err)
	afterFirst := f.snapshot(t, customer, agent)

	second, err := f.svc.Cancel(ctx, b.ID, settle, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, *first.RefundTxnID, *second.RefundTxnID)
	assertSameBalances(t, afterFirst, f.snapshot(t, customer, agent))
}

func TestCancel_ValidatesSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	f.fund(t, nil, "5000")

	b, err := f.svc.Book(ctx, BookInput{
		Kind: domain.BookingTicket, BookingDate: date(2025, 8, 14), CustomerID: customer,
		CustomerCharge: money("500"), CustomerPaymentMode: domain.ModeCash,
	}, domain.Options{})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, b.ID, Settlement{RefundAmount: money("600"), RefundMode: domain.ModeCash}, domain.Options{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "customer_refund_amount", verr.Fields[0].Field)

	_, err = f.svc.Cancel(ctx, b.ID, Settlement{RecoveryAmount: money("10"), RecoveryMode: domain.ModeCash}, domain.Options{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.EditCancelled(ctx, b.ID, Settlement{}, domain.Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingBooked, got.Status)
}

func TestBook_ValidatesInputAndParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	partner := f.entity(t, domain.KindPartner, "Hotel Sea View")

	_, err := f.svc.Book(ctx, BookInput{
		Kind:                domain.BookingService,
		BookingDate:         date(2025, 8, 14),
		CustomerID:          customer,
		CustomerCharge:      money("-5"),
		AgentPaid:           money("10"),
		CustomerPaymentMode: "cheque",
	}, domain.Options{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	for _, name := range []string{"customer_charge", "customer_payment_mode", "agent_paid", "agent_payment_mode", "service_name"} {
		assert.True(t, fields[name], name)
	}

	_, err = f.svc.Book(ctx, ticket(partner, customer, "100", "50", domain.ModeCash, domain.ModeCash), domain.Options{})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	list, err := f.svc.List(ctx, domain.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBook_PolicyNeedsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.entity(t, domain.KindCustomer, "Asha")
	agent := f.entity(t, domain.KindAgent, "Skyways")

	in := ticket(customer, agent, "500", "400", domain.ModeWallet, domain.ModeCash)
	_, err := f.svc.Book(ctx, in, domain.Options{})
	assert.ErrorIs(t, err, domain.ErrPolicyOverride)

	b, err := f.svc.Book(ctx, in, domain.Options{Override: true})
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00001", b.RefNo)

	charge, err := f.st.GetTransaction(ctx, *b.ChargeTxnID)
	require.NoError(t, err)
	assert.NotEmpty(t, charge.PolicyOverrides)
}

func TestList_RejectsBadFilter(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), domain.BookingFilter{Kind: "hotel", Status: "open"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}
