// ABOUTME: Capability-set permission gate for operator actions
// ABOUTME: Pure synchronous membership checks over tokens granted at login

package perm

// Capability tokens granted by the backend. The gate itself treats tokens
// as opaque strings; these constants name the ones the console acts on.
const (
	MessageView   = "message-view"
	MessageSend   = "message-send"
	MessageDelete = "message-delete"
	RoleView      = "role-view"
	RoleAssign    = "role-assign"
	UserView      = "user-view"
	UserManage    = "user-manage"
	BannerManage  = "banner-manage"
	ActivityView  = "activity-log-view"
)

// Gate answers capability checks for a single operator session. The token
// set is fixed at construction; a denied check is not an error, it means
// the corresponding action does not exist for this operator.
type Gate struct {
	tokens map[string]struct{}
}

// NewGate builds a gate over the given capability tokens. Duplicate tokens
// are collapsed; a nil or empty slice yields a gate that denies everything.
func NewGate(tokens []string) *Gate {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return &Gate{tokens: set}
}

// Can reports whether the session holds the given capability token.
func (g *Gate) Can(token string) bool {
	_, ok := g.tokens[token]
	return ok
}

// HasAny reports whether the session holds at least one of the given tokens.
func (g *Gate) HasAny(tokens ...string) bool {
	for _, t := range tokens {
		if g.Can(t) {
			return true
		}
	}
	return false
}

// HasAll reports whether the session holds every one of the given tokens.
// An empty list is vacuously true.
func (g *Gate) HasAll(tokens ...string) bool {
	for _, t := range tokens {
		if !g.Can(t) {
			return false
		}
	}
	return true
}

// Tokens returns a copy of the granted token set, for persistence.
func (g *Gate) Tokens() []string {
	out := make([]string, 0, len(g.tokens))
	for t := range g.tokens {
		out = append(out, t)
	}
	return out
}
