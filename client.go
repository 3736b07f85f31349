package masedb

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/internal/safe"
	"github.com/autom8ter/masedb/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// Client evaluates filters, applies updates and coordinates transactions against a Sender.
// It owns the registry of transactions it has begun. All methods are safe for concurrent use.
type Client struct {
	sender       Sender
	logger       Logger
	sendTimeout  time.Duration
	now          func() time.Time
	config       *Config
	registerer   prometheus.Registerer
	metrics      *metrics
	transactions *safe.Map[*Transaction]
	// lifecycle orders registrations before the close sweep
	lifecycle    sync.RWMutex
	closed       atomic.Bool
}

// New creates a client that delivers operations through sender
func New(sender Sender, opts ...Opt) (*Client, error) {
	if sender == nil {
		return nil, errors.New(errors.Validation, "a sender is required")
	}
	c := &Client{
		sender:       sender,
		logger:       NopLogger(),
		now:          time.Now,
		metrics:      newMetrics(),
		transactions: safe.NewMap(map[string]*Transaction{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.config != nil {
		if err := c.config.Validate(); err != nil {
			return nil, err
		}
		cfgOpts, err := c.config.opts()
		if err != nil {
			return nil, err
		}
		// explicit options take precedence over the config
		for _, o := range append(cfgOpts, opts...) {
			o(c)
		}
	}
	if c.registerer != nil {
		if err := c.metrics.register(c.registerer); err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to register metrics")
		}
	}
	return c, nil
}

// Sender returns the client's sender
func (c *Client) Sender() Sender {
	return c.sender
}

// Evaluate compiles filter and evaluates it against doc
func (c *Client) Evaluate(ctx context.Context, filter map[string]any, doc *Document) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	f, err := CompileFilter(filter)
	if err != nil {
		return false, err
	}
	return f.Match(doc), nil
}

// Apply compiles update and applies it to doc, returning a new document
func (c *Client) Apply(ctx context.Context, doc *Document, update map[string]any) (*Document, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	u, err := CompileUpdate(update)
	if err != nil {
		return nil, err
	}
	return u.WithClock(c.now).Apply(doc)
}

// Begin starts a transaction. Nothing is sent until it commits.
func (c *Client) Begin(ctx context.Context) (*Transaction, error) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if err := c.ready(); err != nil {
		return nil, err
	}
	tx := newTransaction(c)
	c.transactions.Set(tx.id, tx)
	c.metrics.open.Inc()
	c.logger.Debug(ctx, "began transaction", map[string]any{"transaction_id": tx.id})
	return tx, nil
}

// Stage appends an operation to the transaction's op log
func (c *Client) Stage(ctx context.Context, txID string, collection string, op Operation) (*OpHandle, error) {
	tx, err := c.Transaction(txID)
	if err != nil {
		return nil, err
	}
	return tx.Stage(ctx, collection, op)
}

// Commit flushes the transaction's op log to the sender
func (c *Client) Commit(ctx context.Context, txID string) error {
	tx, err := c.Transaction(txID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Rollback discards the transaction's op log
func (c *Client) Rollback(ctx context.Context, txID string) error {
	tx, err := c.Transaction(txID)
	if err != nil {
		return err
	}
	return tx.Rollback(ctx)
}

// Status returns a snapshot of the transaction
func (c *Client) Status(ctx context.Context, txID string) (TxStatus, error) {
	tx, err := c.lookup(txID)
	if err != nil {
		return TxStatus{}, err
	}
	return tx.Status(), nil
}

// Transaction returns a registered transaction by id
func (c *Client) Transaction(txID string) (*Transaction, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.lookup(txID)
}

func (c *Client) lookup(txID string) (*Transaction, error) {
	tx, ok := c.transactions.Get(txID)
	if !ok {
		return nil, errors.New(errors.NotFound, "transaction %s not found", txID).
			WithDetail("transaction_id", txID)
	}
	return tx, nil
}

// Discard removes a terminal transaction from the registry
func (c *Client) Discard(ctx context.Context, txID string) error {
	tx, err := c.lookup(txID)
	if err != nil {
		return err
	}
	var state TxState
	if !c.transactions.DelFunc(txID, func(t *Transaction) bool {
		state = t.Status().State
		return state.Terminal()
	}) {
		return tx.stateError("discard", state)
	}
	return nil
}

// Transactions returns a snapshot of every registered transaction, ordered by id
func (c *Client) Transactions(ctx context.Context) []TxStatus {
	var statuses []TxStatus
	for _, id := range c.transactions.Keys() {
		if tx, ok := c.transactions.Get(id); ok {
			statuses = append(statuses, tx.Status())
		}
	}
	return statuses
}

// WithTx begins a transaction and runs fn against it. The transaction commits if fn returns nil and rolls back otherwise.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) (TxStatus, error) {
	tx, err := c.Begin(ctx)
	if err != nil {
		return TxStatus{}, err
	}
	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			c.logger.Error(ctx, "failed to rollback transaction", rerr, map[string]any{"transaction_id": tx.id})
		}
		return tx.Status(), err
	}
	err = tx.Commit(ctx)
	return tx.Status(), err
}

// Insert sends a single insert outside of any transaction
func (c *Client) Insert(ctx context.Context, collection string, doc *Document) (*Ack, error) {
	return c.direct(ctx, collection, Insert(doc))
}

// Find sends a find and returns the matching documents
func (c *Client) Find(ctx context.Context, collection string, filter map[string]any) (Documents, error) {
	f, err := c.filter(filter)
	if err != nil {
		return nil, err
	}
	ack, err := c.direct(ctx, collection, Find(f))
	if err != nil {
		return nil, err
	}
	return ack.Documents, nil
}

// FindOne returns the first document matching the filter
func (c *Client) FindOne(ctx context.Context, collection string, filter map[string]any) (*Document, error) {
	docs, err := c.Find(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New(errors.NotFound, "no document in %s matched %s", collection, util.JSONString(filter)).
			WithDetail("collection", collection)
	}
	return docs[0], nil
}

// UpdateMany applies an update to every document matching the filter
func (c *Client) UpdateMany(ctx context.Context, collection string, filter map[string]any, update map[string]any) (*Ack, error) {
	f, err := c.filter(filter)
	if err != nil {
		return nil, err
	}
	u, err := CompileUpdate(update)
	if err != nil {
		return nil, err
	}
	return c.direct(ctx, collection, UpdateWhere(f, u.WithClock(c.now)))
}

// DeleteMany deletes every document matching the filter
func (c *Client) DeleteMany(ctx context.Context, collection string, filter map[string]any) (*Ack, error) {
	f, err := c.filter(filter)
	if err != nil {
		return nil, err
	}
	return c.direct(ctx, collection, Delete(f))
}

func (c *Client) filter(spec map[string]any) (*Filter, error) {
	if len(spec) == 0 {
		return NewFilter(nil)
	}
	return CompileFilter(spec)
}

func (c *Client) direct(ctx context.Context, collection string, op Operation) (*Ack, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, errors.New(errors.Validation, "empty collection name")
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	ack, err := c.sender.Send(ctx, collection, op)
	c.metrics.sent(op.Kind, err)
	if err != nil {
		if !errors.HasCode(err, errors.Transport) {
			err = &errors.Error{Code: errors.Transport, Messages: []string{"failed to send operation"}, Err: err}
		}
		return nil, err
	}
	if ack == nil {
		ack = &Ack{}
	}
	return ack, nil
}

// Close rolls back every open transaction, closes the sender if it is an io.Closer and rejects further calls.
// Transactions left committing by a cancelled commit are not touched.
func (c *Client) Close(ctx context.Context) error {
	c.lifecycle.Lock()
	swapped := c.closed.CompareAndSwap(false, true)
	c.lifecycle.Unlock()
	if !swapped {
		return nil
	}
	open := lo.Filter(c.Transactions(ctx), func(s TxStatus, _ int) bool {
		return s.State == TxOpen
	})
	for _, s := range open {
		if tx, ok := c.transactions.Get(s.ID); ok {
			// a concurrent commit may have moved it out of open
			_ = tx.Rollback(ctx)
		}
	}
	if len(open) > 0 {
		c.logger.Info(ctx, "rolled back open transactions on close", map[string]any{"count": len(open)})
	}
	if closer, ok := c.sender.(io.Closer); ok {
		return errors.Wrap(closer.Close(), errors.Transport, "failed to close sender")
	}
	return nil
}

func (c *Client) ready() error {
	if c.closed.Load() {
		return errors.New(errors.Validation, "client is closed")
	}
	return nil
}
