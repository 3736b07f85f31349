package errors_test

import (
	"fmt"
	"testing"

	"github.com/autom8ter/masedb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("wrap nil error", func(t *testing.T) {
		var err error
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Nil(t, err)
	})
	t.Run("wrap error", func(t *testing.T) {
		var err = fmt.Errorf("not found")
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error", func(t *testing.T) {
		err := errors.New(errors.NotFound, "not found")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error then wrap", func(t *testing.T) {
		err := errors.New("", "not found")
		wrapped := errors.Wrap(err, errors.Query, "")
		assert.Equal(t, errors.Query, errors.Extract(wrapped).Code)
	})
	t.Run("new error then wrap then remove", func(t *testing.T) {
		err := errors.Wrap(fmt.Errorf("boom"), errors.Transport, "send failed")
		e := errors.Extract(err).RemoveError()
		assert.Empty(t, e.Err)
		assert.Equal(t, []string{"send failed"}, e.Messages)
	})
	t.Run("error json string", func(t *testing.T) {
		err := errors.New(errors.TransactionState, "not open")
		assert.JSONEq(t, `{"code":"TRANSACTION_STATE_ERROR","messages":["not open"]}`, err.Error())
	})
	t.Run("details", func(t *testing.T) {
		err := errors.New(errors.PartialCommit, "commit stopped").WithDetail("sent", 1)
		assert.Equal(t, 1, err.Detail("sent"))
		assert.Nil(t, err.Detail("pending"))
		assert.JSONEq(t, `{"code":"PARTIAL_COMMIT","messages":["commit stopped"],"details":{"sent":1}}`, err.Error())
	})
	t.Run("has code through wrapping", func(t *testing.T) {
		cause := errors.Wrap(fmt.Errorf("connection reset"), errors.Transport, "")
		outer := &errors.Error{Code: errors.PartialCommit, Err: cause}
		assert.True(t, errors.HasCode(outer, errors.PartialCommit))
		assert.True(t, errors.HasCode(outer, errors.Transport))
		assert.False(t, errors.HasCode(outer, errors.Query))
		assert.False(t, errors.HasCode(nil, errors.Query))
	})
	t.Run("extract foreign error", func(t *testing.T) {
		e := errors.Extract(fmt.Errorf("plain"))
		assert.Equal(t, errors.Code(""), e.Code)
		assert.EqualError(t, e.Err, "plain")
	})
}
