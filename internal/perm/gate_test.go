// ABOUTME: Tests for the capability-set permission gate
// ABOUTME: Covers membership, hasAny/hasAll derivations, and the deny default

package perm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_CanReturnsTrueForGrantedToken(t *testing.T) {
	g := NewGate([]string{MessageView, MessageSend})

	assert.True(t, g.Can(MessageView))
	assert.True(t, g.Can(MessageSend))
}

func TestGate_CanReturnsFalseForAbsentToken(t *testing.T) {
	g := NewGate([]string{MessageView})

	assert.False(t, g.Can(MessageDelete))
	assert.False(t, g.Can("made-up-token"))
}

func TestGate_EmptyGateDeniesEverything(t *testing.T) {
	g := NewGate(nil)

	assert.False(t, g.Can(MessageView))
	assert.False(t, g.HasAny(MessageView, RoleAssign))
}

func TestGate_HasAny(t *testing.T) {
	g := NewGate([]string{RoleView})

	assert.True(t, g.HasAny(RoleAssign, RoleView))
	assert.False(t, g.HasAny(RoleAssign, UserManage))
}

func TestGate_HasAll(t *testing.T) {
	g := NewGate([]string{UserView, UserManage})

	assert.True(t, g.HasAll(UserView, UserManage))
	assert.False(t, g.HasAll(UserView, UserManage, RoleAssign))
	assert.True(t, g.HasAll(), "empty requirement is vacuously satisfied")
}

func TestGate_DuplicateTokensCollapse(t *testing.T) {
	g := NewGate([]string{MessageView, MessageView, MessageView})

	assert.Len(t, g.Tokens(), 1)
	assert.True(t, g.Can(MessageView))
}
