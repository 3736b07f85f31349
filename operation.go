package masedb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/autom8ter/masedb/errors"
)

// OpKind is the kind of operation sent to a collection
type OpKind string

const (
	// OpInsert inserts a document
	OpInsert OpKind = "insert"
	// OpFind finds documents matching a filter
	OpFind OpKind = "find"
	// OpUpdate applies an update to documents matching a filter
	OpUpdate OpKind = "update"
	// OpDelete deletes documents matching a filter
	OpDelete OpKind = "delete"
)

// Operation is a single operation against a collection
type Operation struct {
	Kind     OpKind    `json:"kind"`
	Filter   *Filter   `json:"filter,omitempty"`
	Document *Document `json:"document,omitempty"`
	Update   *Update   `json:"update,omitempty"`
}

// Insert returns an insert operation
func Insert(doc *Document) Operation {
	return Operation{Kind: OpInsert, Document: doc}
}

// Find returns a find operation. A nil filter matches every document.
func Find(filter *Filter) Operation {
	return Operation{Kind: OpFind, Filter: filter}
}

// UpdateWhere returns an update operation
func UpdateWhere(filter *Filter, update *Update) Operation {
	return Operation{Kind: OpUpdate, Filter: filter, Update: update}
}

// Delete returns a delete operation
func Delete(filter *Filter) Operation {
	return Operation{Kind: OpDelete, Filter: filter}
}

// Validate checks the operation carries what its kind requires
func (o Operation) Validate() error {
	switch o.Kind {
	case OpInsert:
		if o.Document == nil {
			return errors.New(errors.Validation, "insert operation requires a document")
		}
	case OpFind, OpDelete:
	case OpUpdate:
		if o.Update == nil {
			return errors.New(errors.Validation, "update operation requires an update")
		}
	default:
		return errors.New(errors.Validation, "unknown operation kind: '%s'", o.Kind)
	}
	return nil
}

// Transactional reports whether the operation may be staged in a transaction
func (o Operation) Transactional() bool {
	return o.Kind == OpInsert || o.Kind == OpUpdate || o.Kind == OpDelete
}

func (o Operation) String() string {
	bits, _ := json.Marshal(o)
	return string(bits)
}

// Ack is the acknowledgement returned by a Sender
type Ack struct {
	// IDs are the ids of the documents inserted or affected
	IDs []string `json:"ids,omitempty"`
	// Matched is the number of documents matched by the operation's filter
	Matched int `json:"matched"`
	// Modified is the number of documents inserted, updated or deleted
	Modified int `json:"modified"`
	// Documents are the documents returned by a find
	Documents Documents `json:"documents,omitempty"`
}

// Sender delivers operations to a document store. Implementations must preserve call order for a single caller.
type Sender interface {
	Send(ctx context.Context, collection string, op Operation) (*Ack, error)
}

// SenderFunc adapts a function to a Sender
type SenderFunc func(ctx context.Context, collection string, op Operation) (*Ack, error)

// Send calls f
func (f SenderFunc) Send(ctx context.Context, collection string, op Operation) (*Ack, error) {
	return f(ctx, collection, op)
}

// OpStatus is the delivery status of a staged operation
type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpSent      OpStatus = "sent"
	OpFailed    OpStatus = "failed"
	OpDiscarded OpStatus = "discarded"
)

// StagedOperation is an operation buffered in a transaction's op log
type StagedOperation struct {
	ID         string    `json:"id"`
	Index      int       `json:"index"`
	Collection string    `json:"collection"`
	Operation  Operation `json:"operation"`
	StagedAt   time.Time `json:"staged_at"`
}

// OpHandle refers to a staged operation and reports its delivery status
type OpHandle struct {
	tx *Transaction
	op StagedOperation
}

// ID returns the staged operation's id
func (h *OpHandle) ID() string {
	return h.op.ID
}

// Index returns the operation's position in the op log
func (h *OpHandle) Index() int {
	return h.op.Index
}

// Operation returns the staged operation
func (h *OpHandle) Operation() StagedOperation {
	return h.op
}

// Status returns the operation's current delivery status
func (h *OpHandle) Status() OpStatus {
	return h.tx.opStatus(h.op.Index)
}
