package ippsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemAuthorizer_InGroup(t *testing.T) {
	a := NewMemAuthorizer(map[string][]string{
		"alice": {"admin", "proxy"},
		"bob":   {"proxy"},
	})
	assert.True(t, a.InGroup("alice", "admin"))
	assert.True(t, a.InGroup("bob", "proxy"))
	assert.False(t, a.InGroup("bob", "admin"))
	assert.False(t, a.InGroup("carol", "admin"))
}

func TestRequireAuth_rejectsAnonymous(t *testing.T) {
	sys := NewSystem(nil)
	c := &Client{System: sys}
	err := requireAuth(c, "")
	assert.Error(t, err)
}

func TestRequireAuth_rejectsWrongGroup(t *testing.T) {
	sys := NewSystem(NewMemAuthorizer(map[string][]string{"alice": {"proxy"}}))
	c := &Client{System: sys, Username: "alice"}
	assert.Error(t, requireAuth(c, "admin"))
	assert.NoError(t, requireAuth(c, "proxy"))
}

func TestCanReadPrivate_ownerAlwaysAllowed(t *testing.T) {
	sys := NewSystem(nil)
	c := &Client{System: sys, Username: "alice"}
	assert.True(t, canReadPrivate(c, "alice", ""))
}

func TestCanReadPrivate_printerGroupMemberAllowed(t *testing.T) {
	sys := NewSystem(NewMemAuthorizer(map[string][]string{"bob": {"operators"}}))
	c := &Client{System: sys, Username: "bob"}
	assert.True(t, canReadPrivate(c, "alice", "operators"))
}

func TestCanReadPrivate_nonOwnerNonMemberDenied(t *testing.T) {
	sys := NewSystem(NewMemAuthorizer(nil))
	c := &Client{System: sys, Username: "eve"}
	assert.False(t, canReadPrivate(c, "alice", "operators"))
}
