package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	out := bytes.NewBuffer(nil)
	cmd.SetOut(out)
	cmd.SetErr(bytes.NewBuffer(nil))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "operations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const operationsFile = `operations:
  - collection: users
    insert: {"_id": "ann", "name": "Ann", "age": 30}
  - collection: users
    insert: {"_id": "tim", "name": "Tim", "age": 12}
  - collection: users
    update: {"filter": {"name": "Ann"}, "update": {"$inc": {"age": 1}}}
  - collection: users
    delete: {"filter": {"age": {"$lt": 18}}}
`

func TestCommands(t *testing.T) {
	t.Run("eval", func(t *testing.T) {
		out, err := execute(t, "", "eval", "-f", `{"age":{"$gte":18},"tags":{"$all":["x"]}}`, "-d", `{"name":"Ann","tags":["x","y"],"age":30}`)
		require.NoError(t, err)
		assert.Equal(t, "true\n", out)
		out, err = execute(t, `{"age":30}`, "eval", "--filter", `{"age":{"$lt":18}}`)
		require.NoError(t, err)
		assert.Equal(t, "false\n", out)
		_, err = execute(t, "", "eval", "-f", `{"age":{"$bogus":1}}`, "-d", `{}`)
		assert.True(t, errors.HasCode(err, errors.Query))
		_, err = execute(t, "", "eval", "-d", `[1]`)
		assert.True(t, errors.HasCode(err, errors.Validation))
	})
	t.Run("apply", func(t *testing.T) {
		out, err := execute(t, "", "apply", "-u", `{"$inc":{"age":1},"$push":{"tags":"z"}}`, "-d", `{"age":30,"tags":[]}`)
		require.NoError(t, err)
		assert.Equal(t, `{"age":31,"tags":["z"]}`+"\n", out)
		out, err = execute(t, `{"a":1}`, "apply", "-u", `{"$unset":{"a":""}}`)
		require.NoError(t, err)
		assert.Equal(t, "{}\n", out)
		_, err = execute(t, "", "apply", "-d", `{}`)
		assert.Error(t, err)
		_, err = execute(t, "", "apply", "-u", `{"$push":{"a":1}}`, "-d", `{"a":1}`)
		assert.True(t, errors.HasCode(err, errors.Update))
	})
	t.Run("run commits", func(t *testing.T) {
		out, err := execute(t, "", "run", "-f", writeFile(t, operationsFile))
		require.NoError(t, err)
		assert.Equal(t, string(masedb.TxCommitted), gjson.Get(out, "state").String())
		assert.Equal(t, int64(4), gjson.Get(out, "total").Int())
		assert.Equal(t, int64(4), gjson.Get(out, "sent").Int())
		assert.Equal(t, int64(-1), gjson.Get(out, "failed_op").Int())
	})
	t.Run("run rolls back", func(t *testing.T) {
		out, err := execute(t, "", "run", "--rollback", "-f", writeFile(t, operationsFile))
		require.NoError(t, err)
		assert.Equal(t, string(masedb.TxRolledBack), gjson.Get(out, "state").String())
		assert.Equal(t, int64(0), gjson.Get(out, "sent").Int())
	})
	t.Run("run reports partial commits", func(t *testing.T) {
		out, err := execute(t, "", "run", "-f", writeFile(t, `operations:
  - collection: users
    insert: {"_id": "ann"}
  - collection: users
    insert: {"_id": "ann"}
  - collection: users
    insert: {"_id": "bob"}
`))
		assert.True(t, errors.HasCode(err, errors.PartialCommit))
		assert.Equal(t, string(masedb.TxFailed), gjson.Get(out, "state").String())
		assert.Equal(t, int64(1), gjson.Get(out, "sent").Int())
		assert.Equal(t, int64(2), gjson.Get(out, "pending").Int())
		assert.Equal(t, int64(1), gjson.Get(out, "failed_op").Int())
	})
	t.Run("run rejects invalid files", func(t *testing.T) {
		_, err := execute(t, "", "run", "-f", writeFile(t, "operations: []\n"))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = execute(t, "", "run", "-f", writeFile(t, "operations:\n  - collection: users\n    upsert: {}\n"))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = execute(t, "", "run", "-f", writeFile(t, "operations:\n  - collection: users\n    update: {\"update\": {}}\n"))
		assert.True(t, errors.HasCode(err, errors.Query))
		_, err = execute(t, "", "run", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
		assert.True(t, errors.HasCode(err, errors.Validation))
		_, err = execute(t, "", "run")
		assert.Error(t, err)
	})
	t.Run("run with a client config", func(t *testing.T) {
		cfg := filepath.Join(t.TempDir(), "client.yaml")
		require.NoError(t, os.WriteFile(cfg, []byte("send_timeout: 5s\n"), 0o600))
		out, err := execute(t, "", "run", "-c", cfg, "-f", writeFile(t, operationsFile))
		require.NoError(t, err)
		assert.Equal(t, string(masedb.TxCommitted), gjson.Get(out, "state").String())
	})
}

func TestParseOperations(t *testing.T) {
	ops, err := parseOperations([]byte(operationsFile))
	require.NoError(t, err)
	require.Len(t, ops, 4)
	kinds := []masedb.OpKind{masedb.OpInsert, masedb.OpInsert, masedb.OpUpdate, masedb.OpDelete}
	for i, op := range ops {
		assert.Equal(t, "users", op.Collection)
		assert.Equal(t, kinds[i], op.Operation.Kind)
	}
	assert.True(t, ops[3].Operation.Filter.Match(masedb.MustDocument(map[string]any{"age": 12})))
	assert.Equal(t, "ann", ops[0].Operation.Document.GetString("_id"))
}
