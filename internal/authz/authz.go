package authz

import (
	"context"
	"sync"
)

// Requester identifies the principal asking for document access.
type Requester struct {
	UserID         string
	OrganizationID string
}

// Authorizer is the external authorization collaborator. The surrounding
// application owns organization membership; this pipeline only asks
// whether a requester may access a document's owning organization.
type Authorizer interface {
	CanAccess(ctx context.Context, orgID string, requester Requester) (bool, error)
}

// MemberAuthorizer grants access when the requester belongs to the
// owning organization, with explicit member overrides for tests and dev.
type MemberAuthorizer struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // orgID -> userID set
}

// NewMemberAuthorizer constructs an empty MemberAuthorizer.
func NewMemberAuthorizer() *MemberAuthorizer {
	return &MemberAuthorizer{members: make(map[string]map[string]struct{})}
}

// AddMember registers a user as a member of an organization.
func (a *MemberAuthorizer) AddMember(orgID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.members[orgID] == nil {
		a.members[orgID] = make(map[string]struct{})
	}
	a.members[orgID][userID] = struct{}{}
}

// CanAccess reports whether the requester may access the organization's
// documents. A requester scoped to the owning organization is always a
// member; cross-organization access requires an explicit override.
func (a *MemberAuthorizer) CanAccess(ctx context.Context, orgID string, requester Requester) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if requester.OrganizationID == orgID {
		return true, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.members[orgID][requester.UserID]
	return ok, nil
}

var _ Authorizer = (*MemberAuthorizer)(nil)
