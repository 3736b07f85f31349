package masedb

import (
	"context"
)

// Future is the pending result of an asynchronous client call
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done. A ctx error does not cancel the underlying call;
// cancel the context passed to the call itself for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Async exposes the client's operations as futures. Results and errors are identical to the blocking calls.
type Async struct {
	client *Client
}

// Async returns the non-blocking view of the client
func (c *Client) Async() *Async {
	return &Async{client: c}
}

// Evaluate is the asynchronous form of Client.Evaluate
func (a *Async) Evaluate(ctx context.Context, filter map[string]any, doc *Document) *Future[bool] {
	return goFuture(func() (bool, error) {
		return a.client.Evaluate(ctx, filter, doc)
	})
}

// Apply is the asynchronous form of Client.Apply
func (a *Async) Apply(ctx context.Context, doc *Document, update map[string]any) *Future[*Document] {
	return goFuture(func() (*Document, error) {
		return a.client.Apply(ctx, doc, update)
	})
}

// Begin is the asynchronous form of Client.Begin
func (a *Async) Begin(ctx context.Context) *Future[*Transaction] {
	return goFuture(func() (*Transaction, error) {
		return a.client.Begin(ctx)
	})
}

// Stage is the asynchronous form of Client.Stage. Stages issued from one goroutine are applied in call order only
// if each future is awaited before the next call.
func (a *Async) Stage(ctx context.Context, txID string, collection string, op Operation) *Future[*OpHandle] {
	return goFuture(func() (*OpHandle, error) {
		return a.client.Stage(ctx, txID, collection, op)
	})
}

// Commit is the asynchronous form of Client.Commit
func (a *Async) Commit(ctx context.Context, txID string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		return struct{}{}, a.client.Commit(ctx, txID)
	})
}

// Rollback is the asynchronous form of Client.Rollback
func (a *Async) Rollback(ctx context.Context, txID string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		return struct{}{}, a.client.Rollback(ctx, txID)
	})
}

// Status is the asynchronous form of Client.Status
func (a *Async) Status(ctx context.Context, txID string) *Future[TxStatus] {
	return goFuture(func() (TxStatus, error) {
		return a.client.Status(ctx, txID)
	})
}

// Insert is the asynchronous form of Client.Insert
func (a *Async) Insert(ctx context.Context, collection string, doc *Document) *Future[*Ack] {
	return goFuture(func() (*Ack, error) {
		return a.client.Insert(ctx, collection, doc)
	})
}

// Find is the asynchronous form of Client.Find
func (a *Async) Find(ctx context.Context, collection string, filter map[string]any) *Future[Documents] {
	return goFuture(func() (Documents, error) {
		return a.client.Find(ctx, collection, filter)
	})
}

// FindOne is the asynchronous form of Client.FindOne
func (a *Async) FindOne(ctx context.Context, collection string, filter map[string]any) *Future[*Document] {
	return goFuture(func() (*Document, error) {
		return a.client.FindOne(ctx, collection, filter)
	})
}

// UpdateMany is the asynchronous form of Client.UpdateMany
func (a *Async) UpdateMany(ctx context.Context, collection string, filter, update map[string]any) *Future[*Ack] {
	return goFuture(func() (*Ack, error) {
		return a.client.UpdateMany(ctx, collection, filter, update)
	})
}

// DeleteMany is the asynchronous form of Client.DeleteMany
func (a *Async) DeleteMany(ctx context.Context, collection string, filter map[string]any) *Future[*Ack] {
	return goFuture(func() (*Ack, error) {
		return a.client.DeleteMany(ctx, collection, filter)
	})
}
