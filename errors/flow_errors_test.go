package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerr "github.com/tabworks/authflow/errors"
)

func TestAsFlowError(t *testing.T) {
	fe := flowerr.NewInvalidState()
	wrapped := fmt.Errorf("handling callback: %w", fe)

	got, ok := flowerr.AsFlowError(wrapped)
	require.True(t, ok)
	assert.Equal(t, flowerr.InvalidState, got.Code)

	_, ok = flowerr.AsFlowError(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, flowerr.UserExists, flowerr.CodeOf(flowerr.NewUserExists()))
	assert.Equal(t, flowerr.ServerError, flowerr.CodeOf(stderrors.New("plain")))
}

func TestWithRedirect_CopiesError(t *testing.T) {
	fe := flowerr.NewAuthFailed("exchange failed")
	withDest := fe.WithRedirect("https://app.test/done")

	assert.Equal(t, "https://app.test/done", withDest.Redirect)
	assert.Empty(t, fe.Redirect, "original is untouched")
	assert.Equal(t, fe.Code, withDest.Code)
}
