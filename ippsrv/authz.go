package ippsrv

// Authorizer gates operations by authenticated username and group
// membership (§4.4). The core never authenticates a transport connection
// itself — that is an external collaborator's job; Authorizer only answers
// "is this already-authenticated user in this group".
type Authorizer interface {
	InGroup(username, group string) bool
}

// memAuthorizer is a small in-memory Authorizer used by default and by
// tests: every username maps to zero or more groups.
type memAuthorizer struct {
	groups map[string]map[string]bool
}

// NewMemAuthorizer builds an Authorizer from a static username->groups map.
func NewMemAuthorizer(membership map[string][]string) Authorizer {
	m := &memAuthorizer{groups: make(map[string]map[string]bool, len(membership))}
	for user, groups := range membership {
		set := make(map[string]bool, len(groups))
		for _, g := range groups {
			set[g] = true
		}
		m.groups[user] = set
	}
	return m
}

func (m *memAuthorizer) InGroup(username, group string) bool {
	set, ok := m.groups[username]
	if !ok {
		return false
	}
	return set[group]
}

// requireAuth enforces the common authorization prologue (§4.4): a non-empty
// authenticated username, optionally a required group membership.
func requireAuth(c *Client, group string) error {
	if !c.authenticated() {
		return errNotAuthorized("authentication required")
	}
	if group != "" && !c.inGroup(group) {
		return errNotAuthorized("user " + c.Username + " is not a member of group " + group)
	}
	return nil
}

// canReadPrivate reports whether c may see attributes outside the privacy
// array of an object owned by owner.
func canReadPrivate(c *Client, owner, printerGroup string) bool {
	if c.Username != "" && c.Username == owner {
		return true
	}
	return printerGroup != "" && c.inGroup(printerGroup)
}
