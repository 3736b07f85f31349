// Package testutil provides fake documents and scripted senders for tests
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/embedded"
	"github.com/autom8ter/masedb/errors"
	"github.com/brianvoe/gofakeit/v6"
)

const (
	UserCollection = "user"
	TaskCollection = "task"
)

// NewUserDoc returns a random user document
func NewUserDoc() *masedb.Document {
	return masedb.MustDocument(map[string]any{
		"_id":  gofakeit.UUID(),
		"name": gofakeit.Name(),
		"contact": map[string]any{
			"email": gofakeit.Email(),
		},
		"account_id":      gofakeit.IntRange(0, 100),
		"language":        gofakeit.Language(),
		"birthday_month":  gofakeit.Month(),
		"favorite_number": gofakeit.Second(),
		"gender":          gofakeit.Gender(),
		"age":             gofakeit.IntRange(0, 100),
		"tags":            []any{gofakeit.HackerNoun(), gofakeit.HackerVerb()},
		"timestamp":       gofakeit.DateRange(time.Now().Truncate(7200*time.Hour), time.Now()).Format(time.RFC3339),
	})
}

// NewTaskDoc returns a random task document owned by the user
func NewTaskDoc(usrID string) *masedb.Document {
	return masedb.MustDocument(map[string]any{
		"_id":     gofakeit.UUID(),
		"user":    usrID,
		"content": gofakeit.LoremIpsumSentence(5),
		"done":    gofakeit.Bool(),
	})
}

// TestClient runs fn against a client backed by an in-memory embedded store and closes both afterwards
func TestClient(fn func(ctx context.Context, client *masedb.Client), opts ...masedb.Opt) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, err := embedded.Open("badger", map[string]any{"storage_path": ""})
	if err != nil {
		return err
	}
	client, err := masedb.New(store, opts...)
	if err != nil {
		store.Close()
		return err
	}
	fn(ctx, client)
	return client.Close(ctx)
}

// Call is a recorded Send
type Call struct {
	Collection string
	Operation  masedb.Operation
}

// RecordingSender records every Send. It can be scripted to fail or block on a given call.
type RecordingSender struct {
	mu      sync.Mutex
	calls   []Call
	failOn  map[int]error
	blockOn map[int]chan struct{}
	next    masedb.Sender
}

// SenderOpt scripts a RecordingSender
type SenderOpt func(r *RecordingSender)

// FailOn makes the nth call (1-based) return err
func FailOn(n int, err error) SenderOpt {
	return func(r *RecordingSender) {
		r.failOn[n] = err
	}
}

// BlockOn makes the nth call (1-based) wait until release is closed or its context is done
func BlockOn(n int, release chan struct{}) SenderOpt {
	return func(r *RecordingSender) {
		r.blockOn[n] = release
	}
}

// Forward delivers successful calls to next and returns its acknowledgement
func Forward(next masedb.Sender) SenderOpt {
	return func(r *RecordingSender) {
		r.next = next
	}
}

// NewRecordingSender creates a RecordingSender
func NewRecordingSender(opts ...SenderOpt) *RecordingSender {
	r := &RecordingSender{
		failOn:  map[int]error{},
		blockOn: map[int]chan struct{}{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Send records the call. Failed and blocked calls are still recorded.
func (r *RecordingSender) Send(ctx context.Context, collection string, op masedb.Operation) (*masedb.Ack, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Collection: collection, Operation: op})
	n := len(r.calls)
	failure := r.failOn[n]
	release := r.blockOn[n]
	r.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	if r.next != nil {
		return r.next.Send(ctx, collection, op)
	}
	return &masedb.Ack{Matched: 1, Modified: 1}, nil
}

// Calls returns the recorded calls in order
func (r *RecordingSender) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]Call, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// ErrUnavailable is a transport failure for scripting senders
var ErrUnavailable = errors.New(errors.Transport, "service unavailable").WithDetail("status", 503)
