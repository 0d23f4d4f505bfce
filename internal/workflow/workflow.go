// Package workflow runs the terminal flows that span several host
// operations: settlement, host test, online sale, void and the pending
// reversal queue.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/batch"
	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/payment"
)

var (
	ErrNotConnected = errors.New("workflow: host not reachable")
	ErrHostFailure  = errors.New("workflow: host operation failed")
	ErrDeclined     = errors.New("workflow: declined by host")
	ErrNotVoidable  = errors.New("workflow: transaction cannot be voided")
)

// ResponseReconcileError is the settlement response code asking the
// terminal to upload its batch.
const ResponseReconcileError = "95"

// Switch is the part of the host switch the workflows drive.
type Switch interface {
	PreConnect(hostIndex int) bool
	WaitForConnection() bool
	Disconnect() bool
	BoundHost() (hostswitch.HostDefinition, bool)

	AuthorizeSale(tx *payment.Transaction) hostswitch.Status
	PerformVoid(tx *payment.Transaction) hostswitch.Status
	SendReversal(tx *payment.Transaction) hostswitch.Status
	PerformBatchUpload(txs []*payment.Transaction) (hostswitch.Status, int)
	PerformSettlement(s *payment.SettlementData, afterBatchUpload bool) hostswitch.Status
	PerformTestTransaction(t *payment.TestTransaction) hostswitch.Status
}

type Runner struct {
	sw       Switch
	store    batch.Store
	counters hostswitch.Counters
	log      zerolog.Logger
}

func New(sw Switch, store batch.Store, counters hostswitch.Counters, log zerolog.Logger) *Runner {
	return &Runner{sw: sw, store: store, counters: counters, log: log.With().Str("component", "workflow").Logger()}
}

// connect binds the switch to a host and waits for its link. On success
// the caller owns the connection and must call Disconnect.
func (r *Runner) connect(hostIndex int) (hostswitch.HostDefinition, error) {
	if !r.sw.PreConnect(hostIndex) || !r.sw.WaitForConnection() {
		r.sw.Disconnect()
		return hostswitch.HostDefinition{}, fmt.Errorf("%w: host %d", ErrNotConnected, hostIndex)
	}
	def, _ := r.sw.BoundHost()
	return def, nil
}

func failure(op string, st hostswitch.Status) error {
	return fmt.Errorf("%w: %s: %s", ErrHostFailure, op, st)
}

// SettlementResult describes a finished settlement attempt.
type SettlementResult struct {
	Totals       payment.BatchTotals
	ResponseCode string
	Uploaded     int
	Settled      int
}

// Settle closes the open batch of a host. When the host reports the
// totals do not reconcile, the pending transactions are uploaded one by
// one and settlement is sent again; upload stops at the first failure.
// The local batch is closed only on a 00 answer.
func (r *Runner) Settle(ctx context.Context, hostIndex int, batchNumber uint32) (SettlementResult, error) {
	var res SettlementResult
	totals, err := r.store.Totals(ctx, hostIndex)
	if err != nil {
		return res, err
	}

	def, err := r.connect(hostIndex)
	if err != nil {
		return res, err
	}
	defer r.sw.Disconnect()

	totals.Currency = def.Currency
	res.Totals = totals
	log := r.log.With().Int("host_index", hostIndex).Uint32("batch", batchNumber).Logger()

	sd := r.settlement(def, batchNumber, totals)
	if st := r.sw.PerformSettlement(sd, false); st != hostswitch.Completed {
		return res, failure("settlement", st)
	}
	res.ResponseCode = sd.ResponseCode

	if sd.ResponseCode == ResponseReconcileError {
		pending, err := r.store.Pending(ctx, hostIndex)
		if err != nil {
			return res, err
		}
		log.Info().Int("pending", len(pending)).Msg("totals rejected, uploading batch")
		st, n := r.sw.PerformBatchUpload(pending)
		res.Uploaded = n
		if st != hostswitch.Completed {
			return res, fmt.Errorf("%w after %d of %d", failure("batch upload", st), n, len(pending))
		}

		after := r.settlement(def, batchNumber, totals)
		after.InvoiceNumber = sd.InvoiceNumber
		if st := r.sw.PerformSettlement(after, true); st != hostswitch.Completed {
			return res, failure("settlement after upload", st)
		}
		res.ResponseCode = after.ResponseCode
	}

	if res.ResponseCode != "00" {
		return res, fmt.Errorf("%w: settlement response %s", ErrDeclined, res.ResponseCode)
	}
	if res.Settled, err = r.store.MarkSettled(ctx, hostIndex); err != nil {
		return res, err
	}
	log.Info().Int("settled", res.Settled).Int("uploaded", res.Uploaded).Msg("batch settled")
	return res, nil
}

func (r *Runner) settlement(def hostswitch.HostDefinition, batchNumber uint32, totals payment.BatchTotals) *payment.SettlementData {
	return &payment.SettlementData{
		STAN:        r.counters.NextSTAN(),
		TxDatetime:  time.Now(),
		TPDU:        def.TPDU,
		NII:         def.NII,
		TID:         def.TID,
		MID:         def.MID,
		BatchNumber: batchNumber,
		Summary:     totals,
	}
}

// TestHost sends a network-management echo to a host.
func (r *Runner) TestHost(hostIndex int) (*payment.TestTransaction, error) {
	def, err := r.connect(hostIndex)
	if err != nil {
		return nil, err
	}
	defer r.sw.Disconnect()

	t := &payment.TestTransaction{
		STAN: r.counters.NextSTAN(),
		TPDU: def.TPDU,
		NII:  def.NII,
		TID:  def.TID,
		MID:  def.MID,
	}
	if st := r.sw.PerformTestTransaction(t); st != hostswitch.Completed {
		return t, failure("test transaction", st)
	}
	if t.ResponseCode != "00" {
		return t, fmt.Errorf("%w: echo response %s", ErrDeclined, t.ResponseCode)
	}
	return t, nil
}

// Reverse connects to a host and clears its pending reversals. It
// reports how many the host acknowledged.
func (r *Runner) Reverse(ctx context.Context, hostIndex int) (int, error) {
	if _, err := r.connect(hostIndex); err != nil {
		return 0, err
	}
	defer r.sw.Disconnect()
	return r.reverse(ctx, hostIndex)
}

// reverse sends the stored reversals of a host over the bound link in
// invoice order and stops at the first one not acknowledged. A reversed
// void puts the transaction back in the status it had before the void.
func (r *Runner) reverse(ctx context.Context, hostIndex int) (int, error) {
	pending, err := r.store.Reversals(ctx, hostIndex)
	if err != nil {
		return 0, err
	}
	for i, tx := range pending {
		tx.ResponseCode = ""
		if st := r.sw.SendReversal(tx); st != hostswitch.Completed {
			return i, fmt.Errorf("%w: invoice %06d", failure("reversal", st), tx.InvoiceNumber)
		}
		if !tx.Approved() {
			return i, fmt.Errorf("%w: reversal of invoice %06d: response %s", ErrDeclined, tx.InvoiceNumber, tx.ResponseCode)
		}
		if tx.InProgress == payment.InProgressVoid {
			tx.Status, tx.InProgress = tx.PreviousStatus, payment.InProgressNone
		} else {
			tx.Status = payment.StatusReversed
		}
		if _, err := r.store.Save(ctx, tx); err != nil {
			return i, err
		}
		r.log.Info().Int("host_index", hostIndex).Uint32("invoice", tx.InvoiceNumber).
			Stringer("status", tx.Status).Msg("reversal acknowledged")
	}
	return len(pending), nil
}

// Void cancels an approved transaction of the open batch. A void whose
// outcome is unknown is stored for reversal; a declined or failed void
// leaves the stored transaction as it was.
func (r *Runner) Void(ctx context.Context, hostIndex int, invoice uint32) (*payment.Transaction, error) {
	tx, err := r.store.Get(ctx, hostIndex, invoice)
	if err != nil {
		return nil, err
	}
	if tx.Status != payment.StatusApproved {
		return tx, fmt.Errorf("%w: invoice %06d is %s", ErrNotVoidable, invoice, tx.Status)
	}

	if _, err := r.connect(hostIndex); err != nil {
		return tx, err
	}
	defer r.sw.Disconnect()
	if _, err := r.reverse(ctx, hostIndex); err != nil {
		return tx, err
	}

	prev := *tx
	tx.PreviousStatus = tx.Status
	tx.InProgress = payment.InProgressVoid
	tx.STAN = r.counters.NextSTAN()
	tx.ResponseCode = ""

	switch st := r.sw.PerformVoid(tx); st {
	case hostswitch.Completed:
	case hostswitch.TransientFailure:
		tx.Status = payment.StatusToReverse
		if _, err := r.store.Save(ctx, tx); err != nil {
			return tx, err
		}
		return tx, failure("void", st)
	default:
		*tx = prev
		return tx, failure("void", st)
	}

	if !tx.Approved() {
		code := tx.ResponseCode
		*tx = prev
		return tx, fmt.Errorf("%w: void response %s", ErrDeclined, code)
	}
	tx.Status = payment.StatusCancelled
	tx.InProgress = payment.InProgressNone
	_, err = r.store.Save(ctx, tx)
	return tx, err
}

// Sale authorizes tx online with the host named by tx.HostIndex. Trace
// and invoice numbers and the terminal identity come from the switch.
// Pending reversals go first and a failed one aborts the sale. An
// approved sale is added to the batch; a sale whose outcome is unknown
// is stored for reversal.
func (r *Runner) Sale(ctx context.Context, tx *payment.Transaction) error {
	def, err := r.connect(tx.HostIndex)
	if err != nil {
		return err
	}
	defer r.sw.Disconnect()
	if _, err := r.reverse(ctx, tx.HostIndex); err != nil {
		return err
	}

	tx.Type = payment.Sale
	tx.STAN = r.counters.NextSTAN()
	tx.InvoiceNumber = r.counters.NextInvoice()
	tx.TPDU, tx.NII, tx.TID, tx.MID = def.TPDU, def.NII, def.TID, def.MID
	if tx.TxDatetime.IsZero() {
		tx.TxDatetime = time.Now()
	}

	switch st := r.sw.AuthorizeSale(tx); st {
	case hostswitch.Completed:
	case hostswitch.TransientFailure:
		tx.Status = payment.StatusToReverse
		if _, err := r.store.Save(ctx, tx); err != nil {
			return err
		}
		return failure("sale", st)
	default:
		tx.Status = payment.StatusTerminalError
		return failure("sale", st)
	}

	if !tx.Approved() {
		tx.Status = payment.StatusDeclined
		return fmt.Errorf("%w: response %s", ErrDeclined, tx.ResponseCode)
	}
	tx.Status = payment.StatusApproved
	_, err = r.store.Save(ctx, tx)
	return err
}
