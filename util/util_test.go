package util_test

import (
	"testing"
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/util"
	"github.com/stretchr/testify/assert"
)

type settings struct {
	Name    string        `json:"name" validate:"required"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries" validate:"gte=0"`
}

func TestUtil(t *testing.T) {
	t.Run("yaml / json conversions", func(t *testing.T) {
		yml, err := util.JSONToYAML([]byte(`{"name":"users","retries":3}`))
		assert.Nil(t, err)
		jsonData, err := util.YAMLToJSON(yml)
		assert.Nil(t, err)
		assert.JSONEq(t, `{"name":"users","retries":3}`, string(jsonData))
	})
	t.Run("json passthrough", func(t *testing.T) {
		jsonData, err := util.YAMLToJSON([]byte(`{"a":1}`))
		assert.Nil(t, err)
		assert.Equal(t, `{"a":1}`, string(jsonData))
	})
	t.Run("json string", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, util.JSONString(map[string]int{"a": 1}))
	})
	t.Run("decode", func(t *testing.T) {
		var s settings
		assert.Nil(t, util.Decode(map[string]any{
			"name":    "users",
			"timeout": "1m30s",
			"retries": "2",
		}, &s))
		assert.Equal(t, "users", s.Name)
		assert.Equal(t, 90*time.Second, s.Timeout)
		assert.Equal(t, 2, s.Retries)
	})
	t.Run("decode yaml", func(t *testing.T) {
		var s settings
		assert.Nil(t, util.DecodeYAML([]byte("name: users\ntimeout: 5s\n"), &s))
		assert.Equal(t, 5*time.Second, s.Timeout)
	})
	t.Run("validate", func(t *testing.T) {
		var s = settings{}
		err := util.ValidateStruct(&s)
		assert.NotNil(t, err)
		assert.True(t, errors.HasCode(err, errors.Validation))
		s.Name = "a name"
		assert.Nil(t, util.ValidateStruct(&s))
	})
}
