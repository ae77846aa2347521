package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(0), CodeOf(nil))
	assert.Equal(t, RuntimeError, CodeOf(fmt.Errorf("boom")))

	err := New(InexistentCollection, "no such collection: teachers")
	assert.Equal(t, InexistentCollection, CodeOf(err))

	wrapped := fmt.Errorf("context: %w", err)
	assert.Equal(t, InexistentCollection, CodeOf(wrapped))
}

func TestErrorString(t *testing.T) {
	err := New(DuplicateCollection, "teachers already exists")
	assert.Contains(t, err.Error(), "DuplicateCollection")
	assert.Contains(t, err.Error(), "teachers already exists")

	cause := errors.New("manifest locked")
	wrapped := Wrap(ConnectMysql, cause, "dial failed")
	assert.ErrorIs(t, wrapped, cause)
}
