package masedb_test

import (
	"testing"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matches(t *testing.T, filter string, doc string) bool {
	t.Helper()
	f, err := masedb.ParseFilter([]byte(filter))
	require.NoError(t, err, filter)
	d, err := masedb.NewDocumentFromBytes([]byte(doc))
	require.NoError(t, err, doc)
	return f.Match(d)
}

func TestFilter(t *testing.T) {
	const ann = `{"name":"Ann","tags":["x","y"],"age":30,"contact":{"email":"ann@example.com"},"scores":[{"v":3},{"v":9}],"nothing":null}`
	t.Run("combined age and tags", func(t *testing.T) {
		assert.True(t, matches(t, `{"age":{"$gte":18},"tags":{"$all":["x"]}}`, ann))
		assert.False(t, matches(t, `{"age":{"$lt":18}}`, ann))
	})
	t.Run("empty filter matches everything", func(t *testing.T) {
		assert.True(t, matches(t, `{}`, ann))
		assert.True(t, matches(t, `{}`, `{}`))
		f, err := masedb.NewFilter(nil)
		require.NoError(t, err)
		assert.True(t, f.Match(masedb.NewDocument()))
		var nilFilter *masedb.Filter
		assert.True(t, nilFilter.Match(masedb.NewDocument()))
	})
	type testCase struct {
		filter string
		expect bool
	}
	cases := map[string][]testCase{
		"equality": {
			{`{"name":"Ann"}`, true},
			{`{"name":"Bob"}`, false},
			{`{"age":30.0}`, true},
			{`{"contact.email":"ann@example.com"}`, true},
			{`{"contact":{"email":"ann@example.com"}}`, true},
			{`{"tags":"x"}`, true},
			{`{"tags":["x","y"]}`, true},
			{`{"tags":["y","x"]}`, false},
			{`{"tags.1":"y"}`, true},
			{`{"scores.v":9}`, true},
			{`{"missing":null}`, true},
			{`{"nothing":null}`, true},
			{`{"missing":{"$eq":1}}`, false},
		},
		"inequality": {
			{`{"name":{"$ne":"Bob"}}`, true},
			{`{"name":{"$ne":"Ann"}}`, false},
			{`{"missing":{"$ne":1}}`, true},
			{`{"tags":{"$ne":"x"}}`, false},
		},
		"ordering": {
			{`{"age":{"$gt":29,"$lt":31}}`, true},
			{`{"age":{"$gte":30.5}}`, false},
			{`{"age":{"$lte":30}}`, true},
			{`{"name":{"$gt":"Al"}}`, true},
			{`{"name":{"$gt":1}}`, false},
			{`{"missing":{"$lt":100}}`, false},
			{`{"scores.v":{"$gt":5}}`, true},
			{`{"scores.v":{"$gt":10}}`, false},
		},
		"membership": {
			{`{"name":{"$in":["Bob","Ann"]}}`, true},
			{`{"name":{"$in":[]}}`, false},
			{`{"tags":{"$in":["y"]}}`, true},
			{`{"missing":{"$in":[null]}}`, true},
			{`{"name":{"$nin":["Bob"]}}`, true},
			{`{"tags":{"$nin":["x"]}}`, false},
		},
		"arrays": {
			{`{"tags":{"$all":["y","x"]}}`, true},
			{`{"tags":{"$all":["x","z"]}}`, false},
			{`{"tags":{"$all":[]}}`, false},
			{`{"tags":{"$size":2}}`, true},
			{`{"tags":{"$size":1}}`, false},
			{`{"name":{"$size":3}}`, false},
			{`{"scores":{"$elemMatch":{"v":{"$gt":8}}}}`, true},
			{`{"scores":{"$elemMatch":{"v":{"$gt":10}}}}`, false},
			{`{"tags":{"$elemMatch":{"$eq":"y"}}}`, true},
		},
		"existence and type": {
			{`{"contact.email":{"$exists":true}}`, true},
			{`{"missing":{"$exists":false}}`, true},
			{`{"nothing":{"$exists":true}}`, true},
			{`{"age":{"$type":"number"}}`, true},
			{`{"age":{"$type":"long"}}`, true},
			{`{"age":{"$type":"double"}}`, false},
			{`{"name":{"$type":2}}`, true},
			{`{"nothing":{"$type":"null"}}`, true},
			{`{"contact":{"$type":["array","object"]}}`, true},
		},
		"regex": {
			{`{"name":{"$regex":"^an"}}`, false},
			{`{"name":{"$regex":"^an","$options":"i"}}`, true},
			{`{"contact.email":{"$regex":"@example\\.com$"}}`, true},
			{`{"tags":{"$regex":"^y"}}`, true},
			{`{"age":{"$regex":"3"}}`, false},
			{`{"name":{"$not":"^B"}}`, true},
		},
		"modulo": {
			{`{"age":{"$mod":[4,2]}}`, true},
			{`{"age":{"$mod":[7,0]}}`, false},
		},
		"logical": {
			{`{"$or":[{"name":"Bob"},{"age":30}]}`, true},
			{`{"$or":[]}`, false},
			{`{"$and":[]}`, true},
			{`{"$and":[{"name":"Ann"},{"age":31}]}`, false},
			{`{"$nor":[{"name":"Bob"},{"age":31}]}`, true},
			{`{"$not":{"name":"Ann"}}`, false},
			{`{"age":{"$not":{"$lt":18}}}`, true},
			{`{"missing":{"$not":{"$gt":1}}}`, true},
		},
		"where": {
			{`{"$where":"this.age > 18 && obj.name == 'Ann'"}`, true},
			{`{"$where":"function() { return this.tags.length == 3 }"}`, false},
			{`{"$where":"this.missing.field == 1"}`, false},
			{`{"$where":"'not a bool'"}`, false},
		},
	}
	for name, tests := range cases {
		tests := tests
		t.Run(name, func(t *testing.T) {
			for _, tc := range tests {
				assert.Equal(t, tc.expect, matches(t, tc.filter, ann), tc.filter)
			}
		})
	}
	t.Run("compile errors are query errors", func(t *testing.T) {
		invalid := []string{
			`{"age":{"$foo":1}}`,
			`{"$foo":[]}`,
			`{"age":{"$gt":1,"plain":2}}`,
			`{"$or":{}}`,
			`{"$or":[1]}`,
			`{"age":{"$in":1}}`,
			`{"age":{"$all":"x"}}`,
			`{"age":{"$size":-1}}`,
			`{"age":{"$size":1.5}}`,
			`{"age":{"$exists":"yes"}}`,
			`{"age":{"$type":"bogus"}}`,
			`{"age":{"$type":[["string"]]}}`,
			`{"age":{"$mod":[0,1]}}`,
			`{"age":{"$mod":[1]}}`,
			`{"name":{"$regex":"("}}`,
			`{"name":{"$regex":"a","$options":"q"}}`,
			`{"name":{"$options":"i"}}`,
			`{"name":{"$not":{}}}`,
			`{"$where":""}`,
			`{"$where":"this.age >"}`,
			`{"$where":1}`,
			`{"a..b":1}`,
			`{"scores":{"$elemMatch":1}}`,
			`[1,2]`,
			`not json`,
		}
		for _, filter := range invalid {
			_, err := masedb.ParseFilter([]byte(filter))
			require.Error(t, err, filter)
			assert.True(t, errors.HasCode(err, errors.Query), filter)
		}
	})
	t.Run("compile from map", func(t *testing.T) {
		f, err := masedb.CompileFilter(map[string]any{"age": map[string]any{"$gt": 25}})
		require.NoError(t, err)
		assert.Equal(t, `{"age":{"$gt":25}}`, f.String())
		assert.True(t, f.Match(masedb.MustDocument(map[string]any{"age": 26})))
		assert.False(t, f.Match(masedb.MustDocument(map[string]any{"age": 25})))
	})
	t.Run("predicate tree", func(t *testing.T) {
		f, err := masedb.ParseFilter([]byte(`{"age":{"$gt":1},"$or":[{"a":1},{"b":2}]}`))
		require.NoError(t, err)
		root, ok := f.Predicate().(*masedb.Logical)
		require.True(t, ok)
		assert.Equal(t, masedb.And, root.Kind)
		require.Len(t, root.Children, 2)
		test, ok := root.Children[0].(*masedb.FieldTest)
		require.True(t, ok)
		assert.Equal(t, "age", test.Path)
		assert.Equal(t, masedb.OpGt, test.Operator)
		assert.True(t, masedb.Equal(masedb.Int(1), test.Operand))
		or, ok := root.Children[1].(*masedb.Logical)
		require.True(t, ok)
		assert.Equal(t, masedb.Or, or.Kind)
		assert.Len(t, or.Children, 2)
	})
	t.Run("equality on a path", func(t *testing.T) {
		id, ok := masedb.MustFilter(map[string]any{"_id": "abc"}).EqualityOn("_id")
		assert.True(t, ok)
		assert.Equal(t, "abc", id.Str())
		_, ok = masedb.MustFilter(map[string]any{"_id": "abc", "a": 1}).EqualityOn("_id")
		assert.False(t, ok)
		_, ok = masedb.MustFilter(map[string]any{"_id": map[string]any{"$ne": "abc"}}).EqualityOn("_id")
		assert.False(t, ok)
	})
	t.Run("documents filter", func(t *testing.T) {
		docs := masedb.Documents{
			masedb.MustDocument(map[string]any{"n": 1}),
			masedb.MustDocument(map[string]any{"n": 2}),
			masedb.MustDocument(map[string]any{"n": 3}),
		}
		assert.Len(t, docs.Filter(masedb.MustFilter(map[string]any{"n": map[string]any{"$gte": 2}})), 2)
	})
}
