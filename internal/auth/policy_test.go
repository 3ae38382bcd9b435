package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	policy, err := NewPolicy()
	require.NoError(t, err)

	cases := []struct {
		role    domain.Role
		op      string
		allowed bool
	}{
		{domain.RoleUser, OpCreate, true},
		{domain.RoleUser, OpAssign, false},
		{domain.RoleUser, OpRespond, false},
		{domain.RoleUser, OpSelfAssign, true},
		{domain.RoleUser, OpResolve, true},
		{domain.RoleUser, OpClose, true},
		{domain.RoleUser, OpReply, true},
		{domain.RoleAgent, OpAssign, true},
		{domain.RoleAgent, OpRespond, true},
		{domain.RoleAdmin, OpAssign, true},
		{domain.RoleAdmin, OpStats, true},
		{domain.Role("guest"), OpList, false},
	}
	for _, tc := range cases {
		got, err := policy.Allowed(tc.role, tc.op)
		require.NoError(t, err)
		assert.Equal(t, tc.allowed, got, "%s/%s", tc.role, tc.op)
	}
}

func TestPolicyWithRules(t *testing.T) {
	policy, err := NewPolicyWithRules([][]string{{"admin", "ticket", OpClose}})
	require.NoError(t, err)

	allowed, err := policy.Allowed(domain.RoleAdmin, OpClose)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = policy.Allowed(domain.RoleUser, OpClose)
	require.NoError(t, err)
	assert.False(t, allowed)
}
