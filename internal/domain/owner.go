package domain

import (
	"github.com/google/uuid"
)

type OwnerKind int

const (
	OwnerUnknown OwnerKind = iota
	OwnerAuthenticated
	OwnerAnonymous
)

// Owner identifies who holds a project: an authenticated user or a
// pre-auth anonymous session. Exactly one of the two identities is set.
type Owner struct {
	kind        OwnerKind
	userID      uuid.UUID
	anonymousID string
}

func AuthenticatedOwner(userID uuid.UUID) Owner {
	return Owner{kind: OwnerAuthenticated, userID: userID}
}

func AnonymousOwner(anonymousID string) Owner {
	return Owner{kind: OwnerAnonymous, anonymousID: anonymousID}
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) IsZero() bool { return o.kind == OwnerUnknown }

func (o Owner) UserID() (uuid.UUID, bool) {
	if o.kind != OwnerAuthenticated {
		return uuid.Nil, false
	}
	return o.userID, true
}

func (o Owner) AnonymousID() (string, bool) {
	if o.kind != OwnerAnonymous {
		return "", false
	}
	return o.anonymousID, true
}

// Owns reports whether this owner holds the project. An authenticated
// owner also owns projects still keyed to an anonymous session they are
// presenting, which is how the claim transition stays reachable.
func (o Owner) Owns(p *Project) bool {
	if p == nil {
		return false
	}
	switch o.kind {
	case OwnerAuthenticated:
		return p.UserID != nil && *p.UserID == o.userID
	case OwnerAnonymous:
		return p.UserID == nil && p.AnonymousID != nil && *p.AnonymousID == o.anonymousID
	default:
		return false
	}
}
