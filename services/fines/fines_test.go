package fines

import (
	"context"
	"testing"
	"time"

	"campusdesk_go/models"
	"campusdesk_go/services/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	fines  map[uint]*models.Fine
	txs    []models.PaymentTransaction
	nextID uint
	// staleExists makes TransactionExists miss rows, as a concurrent delivery would.
	staleExists bool
}

func newMemStore() *memStore {
	return &memStore{fines: map[uint]*models.Fine{}}
}

func (m *memStore) Transaction(_ context.Context, fn func(Store) error) error { return fn(m) }

func (m *memStore) CreateMany(_ context.Context, fines []models.Fine) error {
	for i := range fines {
		m.nextID++
		fines[i].ID = m.nextID
		f := fines[i]
		m.fines[f.ID] = &f
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id uint) (*models.Fine, error) {
	f, ok := m.fines[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, fine *models.Fine) error {
	cp := *fine
	m.fines[fine.ID] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, id uint) (bool, error) {
	_, ok := m.fines[id]
	delete(m.fines, id)
	return ok, nil
}

func (m *memStore) ForEnrollment(_ context.Context, enrollment string) ([]models.Fine, error) {
	var out []models.Fine
	for _, f := range m.fines {
		if f.Enrollment == enrollment {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *memStore) All(context.Context) ([]models.Fine, error) {
	var out []models.Fine
	for _, f := range m.fines {
		out = append(out, *f)
	}
	return out, nil
}

func (m *memStore) TransactionExists(_ context.Context, txID string) (bool, error) {
	if m.staleExists {
		return false, nil
	}
	for _, t := range m.txs {
		if t.TransactionID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RecordTransaction(_ context.Context, tx *models.PaymentTransaction) error {
	for _, t := range m.txs {
		if t.TransactionID == tx.TransactionID {
			return ErrDuplicateTransaction
		}
	}
	m.txs = append(m.txs, *tx)
	return nil
}

func (m *memStore) PaidTotal(_ context.Context, fineID uint) (float64, error) {
	var total float64
	for _, t := range m.txs {
		if t.FineID == fineID {
			total += t.Amount
		}
	}
	return total, nil
}

type fakeNotifier struct{ msgs []notifications.Message }

func (f *fakeNotifier) Enqueue(_ notifications.Target, msg notifications.Message) {
	f.msgs = append(f.msgs, msg)
}

type fakeCheckout struct {
	orderID string
	amount  int64
}

func (f *fakeCheckout) Create(_ context.Context, orderID string, amount int64, _ *models.Fine) (string, string, error) {
	f.orderID, f.amount = orderID, amount
	return "snap-token", "https://pay.example.com/" + orderID, nil
}

func seedFine(t *testing.T, svc *Service, amount float64) models.Fine {
	t.Helper()
	rows, err := svc.BulkAdd(context.Background(), []NewFine{{Enrollment: "E1", Amount: amount, Reason: "Late library return", Class: "cse a"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestBulkAddNotifiesEachStudent(t *testing.T) {
	store := newMemStore()
	n := &fakeNotifier{}
	svc := NewService(store, n)

	rows, err := svc.BulkAdd(context.Background(), []NewFine{
		{Enrollment: "E1", Amount: 100, Reason: "Late"},
		{Enrollment: "E2", Amount: 50.5, Reason: "Uniform", Class: "me-b"},
	})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.FineStatusPending, rows[0].Status)
	assert.Equal(t, "MEB", rows[1].Class)
	require.Len(t, n.msgs, 2)
	assert.Equal(t, "💰 New Fine Added", n.msgs[0].Title)
	assert.Equal(t, "A fine of ₹100 has been added. Reason: Late", n.msgs[0].Body)
	assert.Equal(t, "/fine.html", n.msgs[0].URL)
	assert.Contains(t, n.msgs[1].Body, "₹50.50")
}

func TestBulkAddRejectsInvalidEntries(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	for _, entries := range [][]NewFine{
		nil,
		{{Enrollment: "", Amount: 10, Reason: "x"}},
		{{Enrollment: "E1", Amount: 0, Reason: "x"}},
		{{Enrollment: "E1", Amount: 10, Reason: "  "}},
	} {
		_, err := svc.BulkAdd(context.Background(), entries)
		assert.ErrorIs(t, err, ErrInvalidFine)
	}
	assert.Empty(t, store.fines)
}

func TestApplyPaymentPartialThenPaid(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeNotifier{})
	fine := seedFine(t, svc, 500)
	ctx := context.Background()

	f, applied, err := svc.ApplyPayment(ctx, Payment{FineID: fine.ID, TransactionID: "tx-1", Amount: 200, Status: "success"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.FineStatusPartial, f.Status)
	assert.Equal(t, 200.0, f.PaidAmount)

	f, applied, err = svc.ApplyPayment(ctx, Payment{FineID: fine.ID, TransactionID: "tx-2", Amount: 300, Status: "success"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.FineStatusPaid, f.Status)
	assert.Equal(t, 500.0, f.PaidAmount)
}

func TestApplyPaymentIsIdempotentOnTransactionID(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeNotifier{})
	fine := seedFine(t, svc, 500)
	ctx := context.Background()

	_, _, err := svc.ApplyPayment(ctx, Payment{FineID: fine.ID, TransactionID: "tx-1", Amount: 200})
	require.NoError(t, err)
	f, applied, err := svc.ApplyPayment(ctx, Payment{FineID: fine.ID, TransactionID: "tx-1", Amount: 200})

	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 200.0, f.PaidAmount)
	assert.Equal(t, models.FineStatusPartial, f.Status)
	assert.Len(t, store.txs, 1)
}

func TestApplyPaymentOverpaymentIsPaid(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	fine := seedFine(t, svc, 100)

	f, _, err := svc.ApplyPayment(context.Background(), Payment{FineID: fine.ID, TransactionID: "tx-9", Amount: 150})

	require.NoError(t, err)
	assert.Equal(t, models.FineStatusPaid, f.Status)
}

func TestApplyPaymentErrors(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, _, err := svc.ApplyPayment(context.Background(), Payment{FineID: 99, TransactionID: "tx", Amount: 10})
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.ApplyPayment(context.Background(), Payment{FineID: 1, TransactionID: "", Amount: 10})
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestUpdateValidatesStatus(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	fine := seedFine(t, svc, 100)
	bad := "Forgiven"
	_, err := svc.Update(context.Background(), fine.ID, Update{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	amount := 80.0
	f, err := svc.Update(context.Background(), fine.ID, Update{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 80.0, f.Amount)
}

func TestStartCheckoutChargesOutstanding(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.StartCheckout(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCheckoutDisabled)

	co := &fakeCheckout{}
	svc.SetCheckout(co)
	fine := seedFine(t, svc, 500)
	_, _, err = svc.ApplyPayment(context.Background(), Payment{FineID: fine.ID, TransactionID: "tx-1", Amount: 120.5})
	require.NoError(t, err)

	session, err := svc.StartCheckout(context.Background(), fine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(380), co.amount)
	assert.Equal(t, 379.5, session.Amount)
	id, ok := ParseOrderID(session.OrderID)
	assert.True(t, ok)
	assert.Equal(t, fine.ID, id)
}

func TestOrderIDRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "FINE-42-1700000000", OrderID(42, at))
	_, ok := ParseOrderID("ORDER-1-2")
	assert.False(t, ok)
}

func TestMidtransSignature(t *testing.T) {
	sig := MidtransSignature("FINE-1-1", "200", "500.00", "server-key")
	assert.Len(t, sig, 128)
	assert.True(t, VerifyMidtransSignature("FINE-1-1", "200", "500.00", "server-key", sig))
	assert.False(t, VerifyMidtransSignature("FINE-1-1", "200", "501.00", "server-key", sig))
	assert.False(t, VerifyMidtransSignature("FINE-1-1", "200", "500.00", "server-key", ""))
}

func TestApplyPaymentDuplicateInsertIsNoop(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeNotifier{})
	first := seedFine(t, svc, 100)
	second := seedFine(t, svc, 100)
	ctx := context.Background()

	_, applied, err := svc.ApplyPayment(ctx, Payment{FineID: first.ID, TransactionID: "tx-race", Amount: 100})
	require.NoError(t, err)
	require.True(t, applied)

	store.staleExists = true
	f, applied, err := svc.ApplyPayment(ctx, Payment{FineID: second.ID, TransactionID: "tx-race", Amount: 100})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 0.0, f.PaidAmount)
	assert.Equal(t, models.FineStatusPending, store.fines[second.ID].Status)
	assert.Len(t, store.txs, 1)
}

func TestUpdateAmountRecomputesStatus(t *testing.T) {
	ctx := context.Background()
	amount := func(v float64) *float64 { return &v }

	t.Run("raised above paid becomes partial", func(t *testing.T) {
		svc := NewService(newMemStore(), nil)
		fine := seedFine(t, svc, 100)
		_, _, err := svc.ApplyPayment(ctx, Payment{FineID: fine.ID, TransactionID: "tx-1", Amount: 100})
		require.NoError(t, err)

		f, err := svc.Update(ctx, fine.ID, Update{Amount: amount(150)})
		require.NoError(t, err)
		assert.Equal(t, 150.0, f.Amount)
		assert.Equal(t, models.FineStatusPartial, f.Status)
	})

	t.Run("lowered below paid becomes paid", func(t *testing.T) {
		svc := NewService(newMemStore(), nil)
		fine := seedFine(t, svc, 200)
		_, _, err := svc.ApplyPayment(ctx, Payment{FineID: fine.ID, TransactionID: "tx-1", Amount: 100})
		require.NoError(t, err)

		f, err := svc.Update(ctx, fine.ID, Update{Amount: amount(40)})
		require.NoError(t, err)
		assert.Equal(t, models.FineStatusPaid, f.Status)
	})

	t.Run("nothing paid stays pending", func(t *testing.T) {
		svc := NewService(newMemStore(), nil)
		fine := seedFine(t, svc, 100)

		f, err := svc.Update(ctx, fine.ID, Update{Amount: amount(80)})
		require.NoError(t, err)
		assert.Equal(t, models.FineStatusPending, f.Status)
	})

	t.Run("explicit status wins", func(t *testing.T) {
		svc := NewService(newMemStore(), nil)
		fine := seedFine(t, svc, 100)
		status := models.FineStatusUnpaid

		f, err := svc.Update(ctx, fine.ID, Update{Amount: amount(80), Status: &status})
		require.NoError(t, err)
		assert.Equal(t, models.FineStatusUnpaid, f.Status)
	})
}
