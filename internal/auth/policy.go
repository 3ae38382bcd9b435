package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Operations guarded by the ticket policy.
const (
	OpCreate     = "create"
	OpList       = "list"
	OpGet        = "get"
	OpAssign     = "assign"
	OpSelfAssign = "self_assign"
	OpRespond    = "respond"
	OpReply      = "reply"
	OpResolve    = "resolve"
	OpClose      = "close"
	OpStats      = "stats"
)

const ticketResource = "ticket"

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// defaultTicketPolicies mirrors the access surface existing clients depend on.
// selfAssign, resolve and close are open to every authenticated role.
var defaultTicketPolicies = [][]string{
	{"admin", ticketResource, OpCreate},
	{"admin", ticketResource, OpList},
	{"admin", ticketResource, OpGet},
	{"admin", ticketResource, OpAssign},
	{"admin", ticketResource, OpSelfAssign},
	{"admin", ticketResource, OpRespond},
	{"admin", ticketResource, OpReply},
	{"admin", ticketResource, OpResolve},
	{"admin", ticketResource, OpClose},
	{"admin", ticketResource, OpStats},

	{"agent", ticketResource, OpCreate},
	{"agent", ticketResource, OpList},
	{"agent", ticketResource, OpGet},
	{"agent", ticketResource, OpAssign},
	{"agent", ticketResource, OpSelfAssign},
	{"agent", ticketResource, OpRespond},
	{"agent", ticketResource, OpReply},
	{"agent", ticketResource, OpResolve},
	{"agent", ticketResource, OpClose},
	{"agent", ticketResource, OpStats},

	{"user", ticketResource, OpCreate},
	{"user", ticketResource, OpList},
	{"user", ticketResource, OpGet},
	{"user", ticketResource, OpSelfAssign},
	{"user", ticketResource, OpReply},
	{"user", ticketResource, OpResolve},
	{"user", ticketResource, OpClose},
	{"user", ticketResource, OpStats},
}

// Policy answers whether a role may run a ticket operation.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy loads the default ticket policy table.
func NewPolicy() (*Policy, error) {
	return NewPolicyWithRules(defaultTicketPolicies)
}

// NewPolicyWithRules builds a policy from explicit (role, resource, operation) rows.
func NewPolicyWithRules(rules [][]string) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("failed to add ticket policies: %w", err)
		}
	}
	return &Policy{enforcer: enforcer}, nil
}

// Allowed reports whether role may perform operation on tickets.
func (p *Policy) Allowed(role domain.Role, operation string) (bool, error) {
	allowed, err := p.enforcer.Enforce(string(role), ticketResource, operation)
	if err != nil {
		return false, fmt.Errorf("permission check failed: %w", err)
	}
	return allowed, nil
}
