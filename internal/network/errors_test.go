package network

import (
	"context"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDisconnectError(t *testing.T) {
	benign := []error{
		io.EOF,
		net.ErrClosed,
		context.Canceled,
		syscall.ECONNABORTED,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.EPIPE,
		syscall.ESHUTDOWN,
		errors.Wrap(io.EOF, "read"),
		&net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)},
	}
	for _, err := range benign {
		assert.True(t, IsDisconnectError(err), "%v", err)
		assert.NoError(t, Filter(err))
	}

	fatal := []error{
		errors.New("bad certificate"),
		syscall.EACCES,
		context.DeadlineExceeded,
	}
	for _, err := range fatal {
		assert.False(t, IsDisconnectError(err), "%v", err)
		assert.Equal(t, err, Filter(err))
	}

	assert.False(t, IsDisconnectError(nil))
	assert.NoError(t, Filter(nil))
}

func TestStageError(t *testing.T) {
	cause := errors.New("remote error: tls: bad certificate")
	err := NewStageError(StageHandshake, cause)

	require.Equal(t, StageHandshake, err.Stage)
	assert.True(t, errors.Is(err, ErrHandshakeFailed))
	assert.False(t, errors.Is(err, ErrRecvFailed))
	assert.Equal(t, ErrCodeHandshakeFailed, err.Code())
	assert.Contains(t, err.Error(), "handshake")
	assert.Contains(t, err.Error(), "bad certificate")

	var se *StageError
	require.True(t, errors.As(errors.Wrap(err, "session"), &se))
	assert.Equal(t, StageHandshake, se.Stage)

	unknown := NewStageError(Stage("custom"), cause)
	assert.Empty(t, unknown.Code())
}
