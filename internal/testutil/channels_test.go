package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunAsyncDeliversResult(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	done := RunAsync(func() error { return errBoom })
	assert.ErrorIs(t, Receive(t, done, ShortTestTimeout, "function did not return"), errBoom)
}

func TestReceiveValue(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Receive(t, ch, ShortTestTimeout, "no value"))
}
