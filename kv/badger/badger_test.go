package badger_test

import (
	"fmt"
	"testing"

	"github.com/autom8ter/masedb/kv"
	"github.com/autom8ter/masedb/kv/badger"
	"github.com/stretchr/testify/assert"
)

func Test(t *testing.T) {
	db, err := badger.New("")
	assert.Nil(t, err)
	defer db.Close()
	data := map[string]string{}
	for i := 0; i < 10; i++ {
		data[fmt.Sprintf("users/%d", i)] = fmt.Sprint(i)
	}
	t.Run("set", func(t *testing.T) {
		assert.Nil(t, db.Tx(true, func(tx kv.Tx) error {
			for k, v := range data {
				assert.Nil(t, tx.Set([]byte(k), []byte(v)))
			}
			return nil
		}))
	})
	t.Run("get", func(t *testing.T) {
		assert.Nil(t, db.Tx(false, func(tx kv.Tx) error {
			for k, v := range data {
				data, err := tx.Get([]byte(k))
				assert.Nil(t, err)
				assert.EqualValues(t, v, string(data))
			}
			missing, err := tx.Get([]byte("users/missing"))
			assert.Nil(t, err)
			assert.Nil(t, missing)
			return nil
		}))
	})
	t.Run("iterate prefix", func(t *testing.T) {
		assert.Nil(t, db.Tx(false, func(tx kv.Tx) error {
			iter := tx.NewIterator(kv.IterOpts{Prefix: []byte("users/")})
			defer iter.Close()
			i := 0
			var last string
			for iter.Valid() {
				i++
				item := iter.Item()
				val, _ := item.Value()
				assert.EqualValues(t, data[string(item.Key())], string(val))
				assert.Greater(t, string(item.Key()), last)
				last = string(item.Key())
				iter.Next()
			}
			assert.Equal(t, len(data), i)
			return nil
		}))
	})
	t.Run("rollback on error", func(t *testing.T) {
		err := db.Tx(true, func(tx kv.Tx) error {
			assert.Nil(t, tx.Set([]byte("users/rollback"), []byte("x")))
			return fmt.Errorf("abort")
		})
		assert.Error(t, err)
		assert.Nil(t, db.Tx(false, func(tx kv.Tx) error {
			val, err := tx.Get([]byte("users/rollback"))
			assert.Nil(t, err)
			assert.Nil(t, val)
			return nil
		}))
	})
	t.Run("delete", func(t *testing.T) {
		assert.Nil(t, db.Tx(true, func(tx kv.Tx) error {
			for k := range data {
				assert.Nil(t, tx.Delete([]byte(k)))
			}
			return nil
		}))
		assert.Nil(t, db.Tx(false, func(tx kv.Tx) error {
			iter := tx.NewIterator(kv.IterOpts{Prefix: []byte("users/")})
			defer iter.Close()
			assert.False(t, iter.Valid())
			return nil
		}))
	})
}
