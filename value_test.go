package masedb_test

import (
	"math"
	"testing"

	"github.com/autom8ter/masedb"
	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	t.Run("numeric equality across kinds", func(t *testing.T) {
		assert.True(t, masedb.Equal(masedb.Int(3), masedb.Float(3.0)))
		assert.False(t, masedb.Equal(masedb.Int(3), masedb.Float(3.5)))
		assert.False(t, masedb.Equal(masedb.Int(3), masedb.String("3")))
	})
	t.Run("large ints compare exactly", func(t *testing.T) {
		big := int64(1<<53 + 1)
		assert.False(t, masedb.Equal(masedb.Int(big), masedb.Float(float64(big))))
		c, ok := masedb.Compare(masedb.Int(big), masedb.Float(float64(1<<53)))
		assert.True(t, ok)
		assert.Equal(t, 1, c)
		c, ok = masedb.Compare(masedb.Int(math.MaxInt64), masedb.Float(math.Inf(1)))
		assert.True(t, ok)
		assert.Equal(t, -1, c)
	})
	t.Run("NaN is unequal and unordered", func(t *testing.T) {
		nan := masedb.Float(math.NaN())
		assert.False(t, masedb.Equal(nan, nan))
		_, ok := masedb.Compare(nan, masedb.Int(1))
		assert.False(t, ok)
	})
	t.Run("ordering is limited to numbers and strings", func(t *testing.T) {
		c, ok := masedb.Compare(masedb.String("a"), masedb.String("b"))
		assert.True(t, ok)
		assert.Equal(t, -1, c)
		_, ok = masedb.Compare(masedb.Bool(true), masedb.Bool(false))
		assert.False(t, ok)
		_, ok = masedb.Compare(masedb.Int(1), masedb.String("1"))
		assert.False(t, ok)
		_, ok = masedb.Compare(masedb.Null(), masedb.Null())
		assert.False(t, ok)
	})
	t.Run("arrays and documents", func(t *testing.T) {
		assert.True(t, masedb.Equal(
			masedb.Array(masedb.Int(1), masedb.String("a")),
			masedb.Array(masedb.Float(1), masedb.String("a")),
		))
		assert.False(t, masedb.Equal(masedb.Array(masedb.Int(1)), masedb.Array(masedb.Int(1), masedb.Int(2))))
		a, err := masedb.NewDocumentFromBytes([]byte(`{"a":1,"b":2}`))
		assert.NoError(t, err)
		b, err := masedb.NewDocumentFromBytes([]byte(`{"b":2,"a":1}`))
		assert.NoError(t, err)
		assert.False(t, masedb.Equal(masedb.Doc(a), masedb.Doc(b)))
		assert.True(t, masedb.Equal(masedb.Doc(a), masedb.Doc(a)))
	})
	t.Run("value of go values", func(t *testing.T) {
		v, err := masedb.ValueOf(map[string]any{
			"b":      []string{"x"},
			"a":      uint8(7),
			"nested": map[string]int{"n": 1},
			"nil":    nil,
		})
		assert.NoError(t, err)
		assert.Equal(t, masedb.KindDocument, v.Kind())
		assert.Equal(t, []string{"a", "b", "nested", "nil"}, v.Document().Keys())
		assert.Equal(t, `{"a":7,"b":["x"],"nested":{"n":1},"nil":null}`, v.String())
	})
	t.Run("value of structs", func(t *testing.T) {
		type user struct {
			Name string `json:"name"`
			Age  int    `json:"age"`
		}
		v, err := masedb.ValueOf(user{Name: "Ann", Age: 30})
		assert.NoError(t, err)
		assert.Equal(t, `{"name":"Ann","age":30}`, v.String())
	})
	t.Run("kind names", func(t *testing.T) {
		assert.Equal(t, "long", masedb.KindInt64.String())
		assert.Equal(t, "object", masedb.KindDocument.String())
	})
	t.Run("non finite floats encode as null", func(t *testing.T) {
		assert.Equal(t, "null", masedb.Float(math.Inf(-1)).String())
	})
}
