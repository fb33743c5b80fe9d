package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("dial tcp 10.0.0.1:587: i/o timeout"), true},
		{errors.New("dial tcp 10.0.0.1:587: connect: connection refused"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("lookup smtp.example.com: no such host"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("421 4.7.0 try again later"), true},
		{errors.New("450 4.2.1 mailbox busy"), true},
		{errors.New("550 5.1.1 user unknown"), false},
		{errors.New("554 5.7.1 relay access denied"), false},
		{errors.New("something entirely unexpected"), true},
	}
	for _, c := range cases {
		msg := "nil"
		if c.err != nil {
			msg = c.err.Error()
		}
		assert.Equal(t, c.retryable, Retryable(c.err), msg)
	}
}
