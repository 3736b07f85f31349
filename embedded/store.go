// Package embedded is a Sender that executes operations against a local key value database
package embedded

import (
	"context"
	"strings"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/kv"
	"github.com/autom8ter/masedb/kv/registry"
	"github.com/segmentio/ksuid"

	_ "github.com/autom8ter/masedb/kv/badger"
)

// IDField is the field holding a document's primary key
const IDField = "_id"

// Store keeps documents as json under <collection>/<_id> keys
type Store struct {
	db     kv.DB
	logger masedb.Logger
}

// StoreOpt configures a Store
type StoreOpt func(s *Store)

// WithLogger sets the store's logger
func WithLogger(logger masedb.Logger) StoreOpt {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on an open key value database. The store owns db and closes it on Close.
func New(db kv.DB, opts ...StoreOpt) *Store {
	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = masedb.NopLogger()
	}
	return s
}

// Open opens a registered key value provider (e.g. "badger" with {"storage_path": ""} for in-memory)
func Open(provider string, params map[string]any, opts ...StoreOpt) (*Store, error) {
	db, err := registry.Open(provider, params)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to open %s", provider)
	}
	return New(db, opts...), nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Send executes the operation against the collection
func (s *Store) Send(ctx context.Context, collection string, op masedb.Operation) (*masedb.Ack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection == "" || strings.Contains(collection, "/") {
		return nil, errors.New(errors.Validation, "invalid collection name: '%s'", collection)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	switch op.Kind {
	case masedb.OpInsert:
		return s.insert(ctx, collection, op.Document)
	case masedb.OpFind:
		return s.find(ctx, collection, op.Filter)
	case masedb.OpUpdate:
		return s.update(ctx, collection, op.Filter, op.Update)
	default:
		return s.delete(ctx, collection, op.Filter)
	}
}

func (s *Store) insert(ctx context.Context, collection string, doc *masedb.Document) (*masedb.Ack, error) {
	id, doc, err := ensureID(doc)
	if err != nil {
		return nil, err
	}
	key := documentKey(collection, id)
	if err := s.db.Tx(true, func(tx kv.Tx) error {
		existing, err := tx.Get(key)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.New(errors.Validation, "document %s already exists in %s", id, collection).
				WithDetail("collection", collection).
				WithDetail(IDField, id)
		}
		return tx.Set(key, doc.Bytes())
	}); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "inserted document", map[string]any{"collection": collection, IDField: id})
	return &masedb.Ack{IDs: []string{id}, Modified: 1}, nil
}

func (s *Store) find(ctx context.Context, collection string, filter *masedb.Filter) (*masedb.Ack, error) {
	ack := &masedb.Ack{Documents: masedb.Documents{}}
	if err := s.db.Tx(false, func(tx kv.Tx) error {
		return scan(tx, collection, filter, func(key []byte, doc *masedb.Document) error {
			ack.Documents = append(ack.Documents, doc)
			ack.IDs = append(ack.IDs, doc.GetString(IDField))
			return nil
		})
	}); err != nil {
		return nil, err
	}
	ack.Matched = len(ack.Documents)
	return ack, nil
}

func (s *Store) update(ctx context.Context, collection string, filter *masedb.Filter, update *masedb.Update) (*masedb.Ack, error) {
	ack := &masedb.Ack{}
	if err := s.db.Tx(true, func(tx kv.Tx) error {
		type change struct {
			key []byte
			doc *masedb.Document
		}
		var changes []change
		if err := scan(tx, collection, filter, func(key []byte, doc *masedb.Document) error {
			ack.Matched++
			next, err := update.Apply(doc)
			if err != nil {
				return err
			}
			if next.GetString(IDField) != doc.GetString(IDField) {
				return errors.New(errors.Update, "cannot modify the %s of document %s", IDField, doc.GetString(IDField)).
					WithDetail("collection", collection)
			}
			ack.IDs = append(ack.IDs, doc.GetString(IDField))
			if !next.Equal(doc) {
				changes = append(changes, change{key: key, doc: next})
			}
			return nil
		}); err != nil {
			return err
		}
		for _, c := range changes {
			if err := tx.Set(c.key, c.doc.Bytes()); err != nil {
				return err
			}
		}
		ack.Modified = len(changes)
		return nil
	}); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "updated documents", map[string]any{"collection": collection, "matched": ack.Matched, "modified": ack.Modified})
	return ack, nil
}

func (s *Store) delete(ctx context.Context, collection string, filter *masedb.Filter) (*masedb.Ack, error) {
	ack := &masedb.Ack{}
	if err := s.db.Tx(true, func(tx kv.Tx) error {
		var keys [][]byte
		if err := scan(tx, collection, filter, func(key []byte, doc *masedb.Document) error {
			keys = append(keys, key)
			ack.IDs = append(ack.IDs, doc.GetString(IDField))
			return nil
		}); err != nil {
			return err
		}
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		ack.Matched = len(keys)
		ack.Modified = len(keys)
		return nil
	}); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "deleted documents", map[string]any{"collection": collection, "deleted": ack.Modified})
	return ack, nil
}

func scan(tx kv.Tx, collection string, filter *masedb.Filter, fn func(key []byte, doc *masedb.Document) error) error {
	prefix := collectionPrefix(collection)
	if id, ok := filter.EqualityOn(IDField); ok && id.Kind() == masedb.KindString {
		key := documentKey(collection, id.Str())
		val, err := tx.Get(key)
		if err != nil || val == nil {
			return err
		}
		doc, err := masedb.NewDocumentFromBytes(val)
		if err != nil {
			return errors.Wrap(err, errors.Internal, "corrupt document at %s", string(key))
		}
		return fn(key, doc)
	}
	iter := tx.NewIterator(kv.IterOpts{Prefix: prefix})
	defer iter.Close()
	for ; iter.Valid(); iter.Next() {
		item := iter.Item()
		val, err := item.Value()
		if err != nil {
			return err
		}
		doc, err := masedb.NewDocumentFromBytes(val)
		if err != nil {
			return errors.Wrap(err, errors.Internal, "corrupt document at %s", string(item.Key()))
		}
		if filter.Match(doc) {
			if err := fn(item.Key(), doc); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureID(doc *masedb.Document) (string, *masedb.Document, error) {
	v, ok := doc.Field(IDField)
	if !ok {
		id := ksuid.New().String()
		fields := append([]masedb.Field{{Name: IDField, Value: masedb.String(id)}}, doc.Fields()...)
		return id, masedb.NewDocumentFromFields(fields...), nil
	}
	if v.Kind() != masedb.KindString || v.Str() == "" || strings.Contains(v.Str(), "/") {
		return "", nil, errors.New(errors.Validation, "%s must be a non-empty string without '/', got %s", IDField, v)
	}
	return v.Str(), doc, nil
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + "/")
}

func documentKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}
