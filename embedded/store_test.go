package embedded_test

import (
	"context"
	"testing"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/embedded"
	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *embedded.Store {
	t.Helper()
	store, err := embedded.Open("badger", map[string]any{"storage_path": ""})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	t.Run("insert and find", func(t *testing.T) {
		store := openStore(t)
		var ids []string
		for i := 0; i < 5; i++ {
			usr := testutil.NewUserDoc()
			ack, err := store.Send(ctx, testutil.UserCollection, masedb.Insert(usr))
			require.NoError(t, err)
			assert.Equal(t, 1, ack.Modified)
			assert.Equal(t, []string{usr.GetString("_id")}, ack.IDs)
			ids = append(ids, usr.GetString("_id"))
		}
		ack, err := store.Send(ctx, testutil.UserCollection, masedb.Find(nil))
		require.NoError(t, err)
		assert.Equal(t, 5, ack.Matched)
		assert.ElementsMatch(t, ids, ack.IDs)

		ack, err = store.Send(ctx, testutil.UserCollection, masedb.Find(masedb.MustFilter(map[string]any{"_id": ids[2]})))
		require.NoError(t, err)
		require.Len(t, ack.Documents, 1)
		assert.Equal(t, ids[2], ack.Documents[0].GetString("_id"))

		ack, err = store.Send(ctx, testutil.TaskCollection, masedb.Find(nil))
		require.NoError(t, err)
		assert.Equal(t, 0, ack.Matched)
		assert.NotNil(t, ack.Documents)
	})
	t.Run("generated ids", func(t *testing.T) {
		store := openStore(t)
		ack, err := store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"text": "hi"})))
		require.NoError(t, err)
		require.Len(t, ack.IDs, 1)
		assert.NotEmpty(t, ack.IDs[0])
		found, err := store.Send(ctx, "notes", masedb.Find(masedb.MustFilter(map[string]any{"text": "hi"})))
		require.NoError(t, err)
		require.Len(t, found.Documents, 1)
		assert.Equal(t, []string{"_id", "text"}, found.Documents[0].Keys())
		assert.Equal(t, ack.IDs[0], found.Documents[0].GetString("_id"))
	})
	t.Run("invalid inserts", func(t *testing.T) {
		store := openStore(t)
		doc := masedb.MustDocument(map[string]any{"_id": "a"})
		_, err := store.Send(ctx, "notes", masedb.Insert(doc))
		require.NoError(t, err)
		_, err = store.Send(ctx, "notes", masedb.Insert(doc))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"_id": 1})))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"_id": "a/b"})))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = store.Send(ctx, "a/b", masedb.Insert(doc))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = store.Send(ctx, "", masedb.Insert(doc))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = store.Send(ctx, "notes", masedb.Operation{Kind: masedb.OpInsert})
		assert.True(t, errors.HasCode(err, errors.Validation))
	})
	t.Run("update", func(t *testing.T) {
		store := openStore(t)
		for _, id := range []string{"a", "b", "c"} {
			_, err := store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"_id": id, "n": 1})))
			require.NoError(t, err)
		}
		_, err := store.Send(ctx, "notes", masedb.UpdateWhere(
			masedb.MustFilter(map[string]any{"_id": "c"}),
			masedb.MustUpdate(map[string]any{"$set": map[string]any{"n": 2}}),
		))
		require.NoError(t, err)
		ack, err := store.Send(ctx, "notes", masedb.UpdateWhere(
			masedb.MustFilter(map[string]any{"n": 1}),
			masedb.MustUpdate(map[string]any{"$inc": map[string]any{"n": 10}}),
		))
		require.NoError(t, err)
		assert.Equal(t, 2, ack.Matched)
		assert.Equal(t, 2, ack.Modified)
		assert.ElementsMatch(t, []string{"a", "b"}, ack.IDs)

		ack, err = store.Send(ctx, "notes", masedb.UpdateWhere(
			masedb.MustFilter(map[string]any{"_id": "c"}),
			masedb.MustUpdate(map[string]any{"$set": map[string]any{"n": 2}}),
		))
		require.NoError(t, err)
		assert.Equal(t, 1, ack.Matched)
		assert.Equal(t, 0, ack.Modified)

		found, err := store.Send(ctx, "notes", masedb.Find(masedb.MustFilter(map[string]any{"n": 11})))
		require.NoError(t, err)
		assert.Equal(t, 2, found.Matched)

		ack, err = store.Send(ctx, "notes", masedb.UpdateWhere(
			masedb.MustFilter(map[string]any{"_id": "missing"}),
			masedb.MustUpdate(map[string]any{"$set": map[string]any{"n": 2}}),
		))
		require.NoError(t, err)
		assert.Equal(t, 0, ack.Matched)
	})
	t.Run("failed updates change nothing", func(t *testing.T) {
		store := openStore(t)
		_, err := store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"_id": "a", "n": 1})))
		require.NoError(t, err)
		_, err = store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"_id": "b", "n": "x"})))
		require.NoError(t, err)
		_, err = store.Send(ctx, "notes", masedb.UpdateWhere(
			masedb.MustFilter(nil),
			masedb.MustUpdate(map[string]any{"$inc": map[string]any{"n": 1}}),
		))
		assert.True(t, errors.HasCode(err, errors.Update))
		found, err := store.Send(ctx, "notes", masedb.Find(masedb.MustFilter(map[string]any{"_id": "a"})))
		require.NoError(t, err)
		n, _ := found.Documents[0].Get("n")
		assert.Equal(t, int64(1), n.Int64())

		_, err = store.Send(ctx, "notes", masedb.UpdateWhere(
			masedb.MustFilter(map[string]any{"_id": "a"}),
			masedb.MustUpdate(map[string]any{"$set": map[string]any{"_id": "z"}}),
		))
		assert.True(t, errors.HasCode(err, errors.Update))
	})
	t.Run("delete", func(t *testing.T) {
		store := openStore(t)
		for _, id := range []string{"a", "b", "c"} {
			_, err := store.Send(ctx, "notes", masedb.Insert(masedb.MustDocument(map[string]any{"_id": id, "keep": id == "b"})))
			require.NoError(t, err)
		}
		ack, err := store.Send(ctx, "notes", masedb.Delete(masedb.MustFilter(map[string]any{"keep": false})))
		require.NoError(t, err)
		assert.Equal(t, 2, ack.Modified)
		assert.ElementsMatch(t, []string{"a", "c"}, ack.IDs)
		found, err := store.Send(ctx, "notes", masedb.Find(nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, found.IDs)
	})
	t.Run("cancelled context", func(t *testing.T) {
		store := openStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Send(cctx, "notes", masedb.Find(nil))
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("unknown provider", func(t *testing.T) {
		_, err := embedded.Open("bogus", nil)
		assert.Error(t, err)
	})
}
