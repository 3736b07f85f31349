package kv_test

import (
	"testing"

	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/kv"
	_ "github.com/autom8ter/masedb/kv/badger"
	"github.com/autom8ter/masedb/kv/registry"
	"github.com/stretchr/testify/assert"
)

func Test(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		assert.Contains(t, registry.Registered(), "badger")
	})
	t.Run("unknown provider", func(t *testing.T) {
		_, err := registry.Open("leveldb", nil)
		assert.True(t, errors.HasCode(err, errors.NotFound))
	})
	t.Run("open badger", func(t *testing.T) {
		db, err := registry.Open("badger", map[string]any{"storage_path": ""})
		assert.NoError(t, err)
		defer db.Close()
		assert.Nil(t, db.Tx(true, func(tx kv.Tx) error {
			return tx.Set([]byte("a"), []byte("1"))
		}))
		assert.Nil(t, db.Tx(false, func(tx kv.Tx) error {
			val, err := tx.Get([]byte("a"))
			assert.NoError(t, err)
			assert.Equal(t, "1", string(val))
			return nil
		}))
	})
}
