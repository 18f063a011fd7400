package ippsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetDelete(t *testing.T) {
	s := newStore[int, string]()
	v := "hello"
	s.Put(1, &v)

	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "hello", *got)

	s.Delete(1)
	_, ok = s.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ListPreservesInsertionOrder(t *testing.T) {
	s := newStore[int, string]()
	a, b, c := "a", "b", "c"
	s.Put(3, &c)
	s.Put(1, &a)
	s.Put(2, &b)

	got := s.List()
	require.Len(t, got, 3)
	assert.Equal(t, "c", *got[0])
	assert.Equal(t, "a", *got[1])
	assert.Equal(t, "b", *got[2])
}

func TestStore_PutReplacesWithoutReordering(t *testing.T) {
	s := newStore[int, string]()
	a, b, a2 := "a", "b", "a-updated"
	s.Put(1, &a)
	s.Put(2, &b)
	s.Put(1, &a2)

	got := s.List()
	require.Len(t, got, 2)
	assert.Equal(t, "a-updated", *got[0])
}

func TestStore_DeleteUnknownKeyIsNoop(t *testing.T) {
	s := newStore[int, string]()
	assert.NotPanics(t, func() { s.Delete(99) })
}
