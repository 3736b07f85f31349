package masedb

import (
	"context"
	"sync"
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/segmentio/ksuid"
)

// TxState is the state of a transaction
type TxState string

const (
	// TxOpen accepts staged operations
	TxOpen TxState = "open"
	// TxCommitting is flushing its op log. A commit interrupted by cancellation stays here until resumed.
	TxCommitting TxState = "committing"
	// TxCommitted sent every operation
	TxCommitted TxState = "committed"
	// TxRolledBack discarded its op log without sending anything
	TxRolledBack TxState = "rolled_back"
	// TxFailed stopped at an operation the sender rejected. Earlier operations were sent and are not reverted.
	TxFailed TxState = "failed"
)

// Terminal returns true if no further transitions are possible
func (s TxState) Terminal() bool {
	return s == TxCommitted || s == TxRolledBack || s == TxFailed
}

// TxStatus is a consistent snapshot of a transaction
type TxStatus struct {
	ID    string  `json:"id"`
	State TxState `json:"state"`
	// Total is the number of staged operations
	Total int `json:"total"`
	// Sent is the number of operations the sender acknowledged. They form a prefix of the op log.
	Sent int `json:"sent"`
	// Pending is the number of operations not acknowledged, including a failed one
	Pending int `json:"pending"`
	// FailedOp is the index of the operation that failed, or -1
	FailedOp  int       `json:"failed_op"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Transaction buffers operations locally and flushes them to the sender in order on commit.
// Stage, Commit and Rollback may be called from multiple goroutines; they are serialized internally.
type Transaction struct {
	mu        sync.Mutex
	client    *Client
	id        string
	state     TxState
	ops       []StagedOperation
	acks      []*Ack
	sent      int
	failed    int
	inFlight  bool
	lastErr   error
	startedAt time.Time
	endedAt   time.Time
}

func newTransaction(c *Client) *Transaction {
	return &Transaction{
		client:    c,
		id:        ksuid.New().String(),
		state:     TxOpen,
		failed:    -1,
		startedAt: c.now(),
	}
}

// ID returns the transaction id
func (t *Transaction) ID() string {
	return t.id
}

// Stage appends an operation to the op log. Nothing is sent until Commit.
func (t *Transaction) Stage(ctx context.Context, collection string, op Operation) (*OpHandle, error) {
	if collection == "" {
		return nil, errors.New(errors.Validation, "empty collection name")
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if !op.Transactional() {
		return nil, errors.New(errors.Validation, "%s operations cannot be staged", op.Kind)
	}
	t.mu.Lock()
	if t.state != TxOpen {
		state := t.state
		t.mu.Unlock()
		return nil, t.stateError("stage", state)
	}
	staged := StagedOperation{
		ID:         ksuid.New().String(),
		Index:      len(t.ops),
		Collection: collection,
		Operation:  op,
		StagedAt:   t.client.now(),
	}
	t.ops = append(t.ops, staged)
	t.mu.Unlock()
	t.client.logger.Debug(ctx, "staged operation", map[string]any{
		"transaction_id": t.id,
		"op_id":          staged.ID,
		"op_index":       staged.Index,
		"op_kind":        string(op.Kind),
		"collection":     collection,
	})
	return &OpHandle{tx: t, op: staged}, nil
}

// Commit flushes the op log to the sender in FIFO order. When the sender fails, the remaining operations are
// not sent, the transaction becomes failed and a PartialCommit error reports the boundary. When ctx is cancelled
// the transaction stays committing and a later Commit resumes at the first unacknowledged operation.
// An operation whose Send was in flight when ctx was cancelled counts as pending, so a resumed commit sends it
// again and the sender may see it twice. Operations acknowledged before the cancellation are never resent.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.state == TxOpen:
		t.state = TxCommitting
	case t.state == TxCommitting && !t.inFlight:
	default:
		state, inFlight := t.state, t.inFlight
		t.mu.Unlock()
		if inFlight {
			return errors.New(errors.TransactionState, "transaction %s is already committing", t.id).
				WithDetail("transaction_id", t.id).
				WithDetail("state", string(state))
		}
		return t.stateError("commit", state)
	}
	t.inFlight = true
	ops := t.ops
	start := t.sent
	t.mu.Unlock()

	began := time.Now()
	t.client.logger.Debug(ctx, "committing transaction", map[string]any{
		"transaction_id": t.id,
		"total":          len(ops),
		"resume_at":      start,
	})
	for i := start; i < len(ops); i++ {
		if err := ctx.Err(); err != nil {
			return t.interrupt(ctx, err)
		}
		ack, err := t.send(ctx, ops[i])
		if err != nil {
			if ctx.Err() != nil {
				return t.interrupt(ctx, ctx.Err())
			}
			return t.fail(ctx, i, err)
		}
		t.mu.Lock()
		t.sent++
		t.acks = append(t.acks, ack)
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.inFlight = false
	t.state = TxCommitted
	t.endedAt = t.client.now()
	t.mu.Unlock()
	t.client.metrics.commitTime.Observe(time.Since(began).Seconds())
	t.client.metrics.finished(TxCommitted)
	t.client.logger.Debug(ctx, "committed transaction", map[string]any{
		"transaction_id": t.id,
		"sent":           len(ops),
	})
	return nil
}

func (t *Transaction) send(ctx context.Context, op StagedOperation) (*Ack, error) {
	if t.client.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.client.sendTimeout)
		defer cancel()
	}
	ack, err := t.client.sender.Send(ctx, op.Collection, op.Operation)
	t.client.metrics.sent(op.Operation.Kind, err)
	if err != nil {
		return nil, err
	}
	if ack == nil {
		ack = &Ack{}
	}
	return ack, nil
}

func (t *Transaction) interrupt(ctx context.Context, cause error) error {
	t.mu.Lock()
	t.inFlight = false
	t.lastErr = cause
	status := t.status()
	t.mu.Unlock()
	t.client.logger.Warn(ctx, "commit interrupted", map[string]any{
		"transaction_id": t.id,
		"sent":           status.Sent,
		"pending":        status.Pending,
	})
	return partialCommit(status, cause)
}

func (t *Transaction) fail(ctx context.Context, index int, cause error) error {
	op := t.ops[index]
	transportErr := cause
	if !errors.HasCode(cause, errors.Transport) {
		transportErr = &errors.Error{
			Code:     errors.Transport,
			Messages: []string{"failed to send operation"},
			Err:      cause,
		}
	}
	t.mu.Lock()
	t.inFlight = false
	t.state = TxFailed
	t.failed = index
	t.lastErr = transportErr
	t.endedAt = t.client.now()
	status := t.status()
	t.mu.Unlock()
	t.client.metrics.finished(TxFailed)
	err := partialCommit(status, transportErr).
		WithDetail("failed_op_id", op.ID).
		WithDetail("collection", op.Collection)
	t.client.logger.Error(ctx, "partial commit", err, map[string]any{
		"transaction_id": t.id,
		"failed_op":      index,
		"sent":           status.Sent,
		"pending":        status.Pending,
	})
	return err
}

func partialCommit(status TxStatus, cause error) *errors.Error {
	e := errors.New(errors.PartialCommit, "transaction %s stopped after sending %d of %d operations", status.ID, status.Sent, status.Total).
		WithDetail("transaction_id", status.ID).
		WithDetail("state", string(status.State)).
		WithDetail("sent", status.Sent).
		WithDetail("pending", status.Pending)
	if status.FailedOp >= 0 {
		e = e.WithDetail("failed_op", status.FailedOp)
	}
	e.Err = cause
	return e
}

// Rollback discards the op log without contacting the sender
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.state != TxOpen {
		state := t.state
		t.mu.Unlock()
		return t.stateError("rollback", state)
	}
	t.state = TxRolledBack
	t.endedAt = t.client.now()
	discarded := len(t.ops)
	t.mu.Unlock()
	t.client.metrics.finished(TxRolledBack)
	t.client.logger.Debug(ctx, "rolled back transaction", map[string]any{
		"transaction_id": t.id,
		"discarded":      discarded,
	})
	return nil
}

// Status returns a snapshot of the transaction. It is available in every state.
func (t *Transaction) Status() TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status()
}

// Operations returns a copy of the op log
func (t *Transaction) Operations() []StagedOperation {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]StagedOperation, len(t.ops))
	copy(ops, t.ops)
	return ops
}

// Acks returns the acknowledgements of the operations sent so far, in op log order
func (t *Transaction) Acks() []*Ack {
	t.mu.Lock()
	defer t.mu.Unlock()
	acks := make([]*Ack, len(t.acks))
	copy(acks, t.acks)
	return acks
}

func (t *Transaction) status() TxStatus {
	s := TxStatus{
		ID:        t.id,
		State:     t.state,
		Total:     len(t.ops),
		Sent:      t.sent,
		Pending:   len(t.ops) - t.sent,
		FailedOp:  t.failed,
		StartedAt: t.startedAt,
		EndedAt:   t.endedAt,
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}

func (t *Transaction) opStatus(index int) OpStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case index < t.sent:
		return OpSent
	case index == t.failed:
		return OpFailed
	case t.state == TxRolledBack:
		return OpDiscarded
	}
	return OpPending
}

func (t *Transaction) stateError(action string, state TxState) error {
	return errors.New(errors.TransactionState, "cannot %s transaction %s in state %s", action, t.id, state).
		WithDetail("transaction_id", t.id).
		WithDetail("state", string(state))
}
