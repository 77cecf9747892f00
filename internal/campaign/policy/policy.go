// Package policy provides authorization decisions for campaign actions.
//
// Decisions come from a casbin RBAC model in which the gm role inherits every
// player permission.
package policy

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/zenite-os/zenite/internal/campaign"
)

// Object is a resource guarded by the policy.
type Object string

// Action is an operation on an Object.
type Action string

const (
	ObjectSettings   Object = "settings"
	ObjectNotes      Object = "notes"
	ObjectMemberData Object = "member_data"
	ObjectOwnData    Object = "own_data"
	ObjectCampaign   Object = "campaign"
	ObjectBroadcast  Object = "broadcast"
	ObjectRoll       Object = "roll"
	ObjectChat       Object = "chat"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{string(campaign.RolePlayer), string(ObjectCampaign), string(ActionRead)},
	{string(campaign.RolePlayer), string(ObjectSettings), string(ActionRead)},
	{string(campaign.RolePlayer), string(ObjectMemberData), string(ActionRead)},
	{string(campaign.RolePlayer), string(ObjectOwnData), "*"},
	{string(campaign.RolePlayer), string(ObjectRoll), string(ActionRead)},
	{string(campaign.RolePlayer), string(ObjectRoll), string(ActionWrite)},
	{string(campaign.RolePlayer), string(ObjectChat), string(ActionRead)},
	{string(campaign.RolePlayer), string(ObjectChat), string(ActionWrite)},
	{string(campaign.RoleGM), string(ObjectCampaign), "*"},
	{string(campaign.RoleGM), string(ObjectSettings), string(ActionWrite)},
	{string(campaign.RoleGM), string(ObjectNotes), "*"},
	{string(campaign.RoleGM), string(ObjectMemberData), "*"},
	{string(campaign.RoleGM), string(ObjectBroadcast), string(ActionWrite)},
}

// Enforcer answers role permission questions.
type Enforcer struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// New builds an enforcer loaded with the campaign role policies.
func New() (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("load policy model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create policy enforcer: %w", err)
	}
	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := e.AddRoleForUser(string(campaign.RoleGM), string(campaign.RolePlayer)); err != nil {
		return nil, fmt.Errorf("add gm role inheritance: %w", err)
	}
	return &Enforcer{enforcer: e}, nil
}

var defaultEnforcer = sync.OnceValues(New)

// Default returns a shared enforcer.
func Default() (*Enforcer, error) {
	return defaultEnforcer()
}

// Can reports whether role may perform act on obj.
func (e *Enforcer) Can(role campaign.Role, obj Object, act Action) bool {
	if e == nil || e.enforcer == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	allowed, err := e.enforcer.Enforce(string(role), string(obj), string(act))
	if err != nil {
		return false
	}
	return allowed
}

// Authorize checks that member is active and its role allows act on obj.
func (e *Enforcer) Authorize(member campaign.Member, obj Object, act Action) error {
	switch member.Status {
	case campaign.StatusActive:
	case campaign.StatusKicked:
		return campaign.ErrKicked
	default:
		return campaign.ErrNotMember
	}
	if e.Can(member.Role, obj, act) {
		return nil
	}
	return campaign.ErrGMRequired
}
