package ftlmngt

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_ErrorStringIncludesMsgAndFirstContextPart(t *testing.T) {
	err := NewStepError("startup", "open_base_bdev", ErrCodeCollaborator, "device busy")
	msg := err.Error()
	require.Contains(t, msg, "device busy")
	require.Contains(t, msg, "process=startup")
}

func TestError_IsMatchesByCode(t *testing.T) {
	a := NewError("Execute", ErrCodeStepFailed, "boom")
	b := &Error{Code: ErrCodeStepFailed}
	require.True(t, errors.Is(a, b))

	c := &Error{Code: ErrCodeTimeout}
	require.False(t, errors.Is(a, c))
}

func TestWrapError_PreservesInnerFtlmngtError(t *testing.T) {
	inner := NewStepError("shutdown", "persist_l2p", ErrCodeIOError, "write failed")
	wrapped := WrapError("Rollback", inner)

	require.Equal(t, "Rollback", wrapped.Op)
	require.Equal(t, inner.Code, wrapped.Code)
	require.Equal(t, inner.Step, wrapped.Step)
}

func TestWrapError_MapsErrnoToCode(t *testing.T) {
	wrapped := WrapError("SubmitWrite", syscall.ENOSPC)
	require.Equal(t, ErrCodeConstruction, wrapped.Code)
	require.Equal(t, syscall.ENOSPC, wrapped.Errno)
}

func TestWrapError_NilInnerReturnsNil(t *testing.T) {
	require.Nil(t, WrapError("Execute", nil))
}

func TestIsCode_AndIsErrno(t *testing.T) {
	wrapped := WrapError("SubmitRead", syscall.EAGAIN)
	require.True(t, IsCode(wrapped, ErrCodeIOError))
	require.True(t, IsErrno(wrapped, syscall.EAGAIN))
	require.False(t, IsErrno(wrapped, syscall.EINVAL))
}

func TestIsTransient_OnlyMatchesEAGAIN(t *testing.T) {
	require.True(t, IsTransient(WrapError("Unmap", syscall.EAGAIN)))
	require.False(t, IsTransient(WrapError("Unmap", syscall.EIO)))
}
