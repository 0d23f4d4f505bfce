package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-pos-hostswitch/internal/batch"
	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/payment"
)

type mockSwitch struct {
	mock.Mock
}

func (m *mockSwitch) PreConnect(hostIndex int) bool { return m.Called(hostIndex).Bool(0) }
func (m *mockSwitch) WaitForConnection() bool       { return m.Called().Bool(0) }
func (m *mockSwitch) Disconnect() bool              { return m.Called().Bool(0) }

func (m *mockSwitch) BoundHost() (hostswitch.HostDefinition, bool) {
	args := m.Called()
	return args.Get(0).(hostswitch.HostDefinition), args.Bool(1)
}

func (m *mockSwitch) AuthorizeSale(tx *payment.Transaction) hostswitch.Status {
	return m.Called(tx).Get(0).(hostswitch.Status)
}

func (m *mockSwitch) PerformVoid(tx *payment.Transaction) hostswitch.Status {
	return m.Called(tx).Get(0).(hostswitch.Status)
}

func (m *mockSwitch) SendReversal(tx *payment.Transaction) hostswitch.Status {
	return m.Called(tx).Get(0).(hostswitch.Status)
}

func (m *mockSwitch) PerformBatchUpload(txs []*payment.Transaction) (hostswitch.Status, int) {
	args := m.Called(txs)
	return args.Get(0).(hostswitch.Status), args.Int(1)
}

func (m *mockSwitch) PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) hostswitch.Status {
	return m.Called(s, afterBatchUpload).Get(0).(hostswitch.Status)
}

func (m *mockSwitch) PerformTestTransaction(t *payment.TestTransaction) hostswitch.Status {
	return m.Called(t).Get(0).(hostswitch.Status)
}

var diners = hostswitch.HostDefinition{
	Index: 3, Name: "diners", Protocol: hostswitch.ProtocolDiners,
	TPDU: "6001230000", NII: 123, TID: "TERM0001", MID: "MERCHANT0000001", Currency: "458",
}

func setup(t *testing.T) (*Runner, *mockSwitch, *batch.SQLiteStore) {
	t.Helper()
	store, err := batch.Open(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sw := new(mockSwitch)
	t.Cleanup(func() { sw.AssertExpectations(t) })
	return New(sw, store, hostswitch.NewCounters(100, 20), zerolog.Nop()), sw, store
}

func connected(sw *mockSwitch) {
	sw.On("PreConnect", diners.Index).Return(true).Once()
	sw.On("WaitForConnection").Return(true).Once()
	sw.On("BoundHost").Return(diners, true)
	sw.On("Disconnect").Return(true)
}

func respond(code string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(0).(*payment.SettlementData).ResponseCode = code
	}
}

func approvedSale(t *testing.T, store batch.Store, invoice uint32, amount uint64) {
	t.Helper()
	_, err := store.Save(context.Background(), &payment.Transaction{
		HostIndex:     diners.Index,
		Amount:        payment.AmountOf(amount),
		Type:          payment.Sale,
		Status:        payment.StatusApproved,
		InvoiceNumber: invoice,
		BatchNumber:   3,
	})
	require.NoError(t, err)
}

func TestSettleReconciled(t *testing.T) {
	r, sw, store := setup(t)
	approvedSale(t, store, 1, 1000)
	connected(sw)

	sw.On("PerformSettlement", mock.MatchedBy(func(s *payment.SettlementData) bool {
		return s.Summary.Sales.Total == 1000 && s.Summary.Currency == "458" && s.NII == 123 && s.STAN == 101
	}), false).Run(respond("00")).Return(hostswitch.Completed).Once()

	res, err := r.Settle(context.Background(), diners.Index, 3)
	require.NoError(t, err)
	assert.Equal(t, "00", res.ResponseCode)
	assert.Equal(t, 1, res.Settled)
	assert.Zero(t, res.Uploaded)
	sw.AssertNotCalled(t, "PerformBatchUpload", mock.Anything)
}

func TestSettleUploadsOnReconcileError(t *testing.T) {
	r, sw, store := setup(t)
	approvedSale(t, store, 1, 1000)
	approvedSale(t, store, 2, 500)
	connected(sw)

	var stans []uint32
	sw.On("PerformSettlement", mock.Anything, false).Run(func(args mock.Arguments) {
		s := args.Get(0).(*payment.SettlementData)
		stans = append(stans, s.STAN)
		s.InvoiceNumber = 21
		s.ResponseCode = "95"
	}).Return(hostswitch.Completed).Once()
	sw.On("PerformBatchUpload", mock.MatchedBy(func(txs []*payment.Transaction) bool {
		return len(txs) == 2 && txs[0].InvoiceNumber == 1
	})).Return(hostswitch.Completed, 2).Once()
	sw.On("PerformSettlement", mock.Anything, true).Run(func(args mock.Arguments) {
		s := args.Get(0).(*payment.SettlementData)
		stans = append(stans, s.STAN)
		assert.Equal(t, uint32(21), s.InvoiceNumber)
		s.ResponseCode = "00"
	}).Return(hostswitch.Completed).Once()

	res, err := r.Settle(context.Background(), diners.Index, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 2, res.Settled)
	require.Len(t, stans, 2)
	assert.NotEqual(t, stans[0], stans[1])

	pending, err := store.Pending(context.Background(), diners.Index)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSettleStopsWhenUploadFails(t *testing.T) {
	r, sw, store := setup(t)
	approvedSale(t, store, 1, 1000)
	approvedSale(t, store, 2, 500)
	connected(sw)

	sw.On("PerformSettlement", mock.Anything, false).Run(respond("95")).Return(hostswitch.Completed).Once()
	sw.On("PerformBatchUpload", mock.Anything).Return(hostswitch.PermFailure, 1).Once()

	res, err := r.Settle(context.Background(), diners.Index, 3)
	assert.ErrorIs(t, err, ErrHostFailure)
	assert.Equal(t, 1, res.Uploaded)
	sw.AssertNotCalled(t, "PerformSettlement", mock.Anything, true)

	pending, err := store.Pending(context.Background(), diners.Index)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSettleUnreachable(t *testing.T) {
	r, sw, _ := setup(t)
	sw.On("PreConnect", diners.Index).Return(false).Once()
	sw.On("Disconnect").Return(true).Once()

	_, err := r.Settle(context.Background(), diners.Index, 3)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTestHost(t *testing.T) {
	r, sw, _ := setup(t)
	connected(sw)
	sw.On("PerformTestTransaction", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(0).(*payment.TestTransaction).ResponseCode = "00"
	}).Return(hostswitch.Completed).Once()

	echo, err := r.TestHost(diners.Index)
	require.NoError(t, err)
	assert.Equal(t, "TERM0001", echo.TID)
	assert.Equal(t, uint32(101), echo.STAN)
}

func TestSale(t *testing.T) {
	ctx := context.Background()

	t.Run("approved", func(t *testing.T) {
		r, sw, store := setup(t)
		connected(sw)
		sw.On("AuthorizeSale", mock.Anything).Run(func(args mock.Arguments) {
			tx := args.Get(0).(*payment.Transaction)
			tx.ResponseCode = "00"
			tx.RRN = "123456789012"
		}).Return(hostswitch.Completed).Once()

		tx := &payment.Transaction{HostIndex: diners.Index, PAN: "4000000000000002", Amount: payment.AmountOf(1050), EntryMode: payment.EntryManual}
		require.NoError(t, r.Sale(ctx, tx))
		assert.Equal(t, payment.StatusApproved, tx.Status)
		assert.Equal(t, uint32(101), tx.STAN)
		assert.Equal(t, uint32(21), tx.InvoiceNumber)
		assert.Equal(t, "6001230000", tx.TPDU)

		stored, err := store.Get(ctx, diners.Index, 21)
		require.NoError(t, err)
		assert.Equal(t, "123456789012", stored.RRN)
	})

	t.Run("declined", func(t *testing.T) {
		r, sw, store := setup(t)
		connected(sw)
		sw.On("AuthorizeSale", mock.Anything).Run(func(args mock.Arguments) {
			args.Get(0).(*payment.Transaction).ResponseCode = "05"
		}).Return(hostswitch.Completed).Once()

		tx := &payment.Transaction{HostIndex: diners.Index, Amount: payment.AmountOf(1050)}
		assert.ErrorIs(t, r.Sale(ctx, tx), ErrDeclined)
		assert.Equal(t, payment.StatusDeclined, tx.Status)
		_, err := store.Get(ctx, diners.Index, tx.InvoiceNumber)
		assert.ErrorIs(t, err, batch.ErrNotFound)
	})

	t.Run("link lost", func(t *testing.T) {
		r, sw, store := setup(t)
		connected(sw)
		sw.On("AuthorizeSale", mock.Anything).Return(hostswitch.TransientFailure).Once()

		tx := &payment.Transaction{HostIndex: diners.Index, Amount: payment.AmountOf(1050)}
		assert.ErrorIs(t, r.Sale(ctx, tx), ErrHostFailure)
		stored, err := store.Get(ctx, diners.Index, tx.InvoiceNumber)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusToReverse, stored.Status)

		pending, err := store.Pending(ctx, diners.Index)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func answer(code string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(0).(*payment.Transaction).ResponseCode = code
	}
}

func toReverse(t *testing.T, store batch.Store, invoice uint32, inProgress payment.InProgressStatus) {
	t.Helper()
	_, err := store.Save(context.Background(), &payment.Transaction{
		HostIndex:      diners.Index,
		Amount:         payment.AmountOf(1050),
		Type:           payment.Sale,
		Status:         payment.StatusToReverse,
		PreviousStatus: payment.StatusApproved,
		InProgress:     inProgress,
		InvoiceNumber:  invoice,
		STAN:           invoice + 50,
	})
	require.NoError(t, err)
}

func TestReverse(t *testing.T) {
	ctx := context.Background()

	t.Run("clears queue", func(t *testing.T) {
		r, sw, store := setup(t)
		toReverse(t, store, 2, payment.InProgressNone)
		toReverse(t, store, 1, payment.InProgressVoid)
		approvedSale(t, store, 3, 400)
		connected(sw)

		var order []uint32
		sw.On("SendReversal", mock.Anything).Run(func(args mock.Arguments) {
			tx := args.Get(0).(*payment.Transaction)
			order = append(order, tx.InvoiceNumber)
			tx.ResponseCode = "00"
		}).Return(hostswitch.Completed).Twice()

		n, err := r.Reverse(ctx, diners.Index)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []uint32{1, 2}, order)

		voided, err := store.Get(ctx, diners.Index, 1)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, voided.Status)
		assert.Equal(t, payment.InProgressNone, voided.InProgress)
		sale, err := store.Get(ctx, diners.Index, 2)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusReversed, sale.Status)

		rev, err := store.Reversals(ctx, diners.Index)
		require.NoError(t, err)
		assert.Empty(t, rev)
		totals, err := store.Totals(ctx, diners.Index)
		require.NoError(t, err)
		assert.Equal(t, payment.BatchTotal{Count: 2, Total: 1450}, totals.Sales)
	})

	t.Run("stops at first failure", func(t *testing.T) {
		r, sw, store := setup(t)
		toReverse(t, store, 1, payment.InProgressNone)
		toReverse(t, store, 2, payment.InProgressNone)
		connected(sw)
		sw.On("SendReversal", mock.Anything).Return(hostswitch.TransientFailure).Once()

		n, err := r.Reverse(ctx, diners.Index)
		assert.ErrorIs(t, err, ErrHostFailure)
		assert.Zero(t, n)
		rev, err := store.Reversals(ctx, diners.Index)
		require.NoError(t, err)
		assert.Len(t, rev, 2)
	})

	t.Run("declined stays queued", func(t *testing.T) {
		r, sw, store := setup(t)
		toReverse(t, store, 1, payment.InProgressNone)
		connected(sw)
		sw.On("SendReversal", mock.Anything).Run(answer("96")).Return(hostswitch.Completed).Once()

		_, err := r.Reverse(ctx, diners.Index)
		assert.ErrorIs(t, err, ErrDeclined)
		rev, err := store.Reversals(ctx, diners.Index)
		require.NoError(t, err)
		assert.Len(t, rev, 1)
	})
}

func TestSaleSendsPendingReversalFirst(t *testing.T) {
	ctx := context.Background()

	t.Run("reversal acknowledged", func(t *testing.T) {
		r, sw, store := setup(t)
		toReverse(t, store, 5, payment.InProgressNone)
		connected(sw)

		var calls []string
		sw.On("SendReversal", mock.Anything).Run(func(args mock.Arguments) {
			calls = append(calls, "reversal")
			answer("00")(args)
		}).Return(hostswitch.Completed).Once()
		sw.On("AuthorizeSale", mock.Anything).Run(func(args mock.Arguments) {
			calls = append(calls, "sale")
			answer("00")(args)
		}).Return(hostswitch.Completed).Once()

		tx := &payment.Transaction{HostIndex: diners.Index, Amount: payment.AmountOf(700)}
		require.NoError(t, r.Sale(ctx, tx))
		assert.Equal(t, []string{"reversal", "sale"}, calls)

		reversed, err := store.Get(ctx, diners.Index, 5)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusReversed, reversed.Status)
	})

	t.Run("reversal failed", func(t *testing.T) {
		r, sw, store := setup(t)
		toReverse(t, store, 5, payment.InProgressNone)
		connected(sw)
		sw.On("SendReversal", mock.Anything).Return(hostswitch.TransientFailure).Once()

		tx := &payment.Transaction{HostIndex: diners.Index, Amount: payment.AmountOf(700)}
		assert.ErrorIs(t, r.Sale(ctx, tx), ErrHostFailure)
		sw.AssertNotCalled(t, "AuthorizeSale", mock.Anything)
	})
}

func TestVoid(t *testing.T) {
	ctx := context.Background()

	t.Run("approved", func(t *testing.T) {
		r, sw, store := setup(t)
		approvedSale(t, store, 7, 1000)
		approvedSale(t, store, 8, 300)
		connected(sw)
		sw.On("PerformVoid", mock.MatchedBy(func(tx *payment.Transaction) bool {
			return tx.InvoiceNumber == 7 && tx.InProgress == payment.InProgressVoid &&
				tx.PreviousStatus == payment.StatusApproved && tx.STAN == 101
		})).Run(answer("00")).Return(hostswitch.Completed).Once()

		tx, err := r.Void(ctx, diners.Index, 7)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCancelled, tx.Status)
		assert.Equal(t, payment.InProgressNone, tx.InProgress)

		stored, err := store.Get(ctx, diners.Index, 7)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCancelled, stored.Status)
		totals, err := store.Totals(ctx, diners.Index)
		require.NoError(t, err)
		assert.Equal(t, payment.BatchTotal{Count: 1, Total: 300}, totals.Sales)
	})

	t.Run("declined keeps sale", func(t *testing.T) {
		r, sw, store := setup(t)
		approvedSale(t, store, 7, 1000)
		connected(sw)
		sw.On("PerformVoid", mock.Anything).Run(answer("12")).Return(hostswitch.Completed).Once()

		tx, err := r.Void(ctx, diners.Index, 7)
		assert.ErrorIs(t, err, ErrDeclined)
		assert.Equal(t, payment.StatusApproved, tx.Status)
		stored, err := store.Get(ctx, diners.Index, 7)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, stored.Status)
		assert.Equal(t, payment.InProgressNone, stored.InProgress)
	})

	t.Run("link lost queues void reversal", func(t *testing.T) {
		r, sw, store := setup(t)
		approvedSale(t, store, 7, 1000)
		connected(sw)
		sw.On("PerformVoid", mock.Anything).Return(hostswitch.TransientFailure).Once()

		_, err := r.Void(ctx, diners.Index, 7)
		assert.ErrorIs(t, err, ErrHostFailure)
		rev, err := store.Reversals(ctx, diners.Index)
		require.NoError(t, err)
		require.Len(t, rev, 1)
		assert.Equal(t, payment.InProgressVoid, rev[0].InProgress)
		assert.Equal(t, payment.StatusApproved, rev[0].PreviousStatus)
	})

	t.Run("not voidable", func(t *testing.T) {
		r, sw, store := setup(t)
		toReverse(t, store, 7, payment.InProgressNone)

		_, err := r.Void(ctx, diners.Index, 7)
		assert.ErrorIs(t, err, ErrNotVoidable)
		sw.AssertNotCalled(t, "PreConnect", mock.Anything)

		_, err = r.Void(ctx, diners.Index, 9)
		assert.ErrorIs(t, err, batch.ErrNotFound)
	})
}
