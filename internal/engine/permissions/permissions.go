// Package permissions decides whether an actor holds the action groups a
// command requires.
package permissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	accessrepo "github.com/yungbote/dcengine/internal/data/repos/access"
	clusterrepo "github.com/yungbote/dcengine/internal/data/repos/cluster"
	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

// Subject is one (object, object type, action group) check.
type Subject struct {
	ObjectID    uuid.UUID          `json:"object_id"`
	ObjectType  access.ObjectType  `json:"object_type"`
	ActionGroup access.ActionGroup `json:"action_group"`
}

func (s Subject) String() string {
	return fmt.Sprintf("%s:%s:%s", s.ObjectType, s.ObjectID, s.ActionGroup)
}

type Mode string

const (
	// All requires a grant for every subject.
	All Mode = "all"
	// Any requires a grant for at least one subject.
	Any Mode = "any"
)

type Requirement struct {
	Subjects []Subject
	Mode     Mode
}

func AllOf(subjects ...Subject) Requirement { return Requirement{Subjects: subjects, Mode: All} }
func AnyOf(subjects ...Subject) Requirement { return Requirement{Subjects: subjects, Mode: Any} }

// System is the subject for actions scoped to the whole installation.
func System(group access.ActionGroup) Subject {
	return Subject{ObjectID: access.SystemObjectID, ObjectType: access.ObjectSystem, ActionGroup: group}
}

type Deps struct {
	Principals     accessrepo.PrincipalRepo
	Permissions    accessrepo.PermissionRepo
	StorageDomains clusterrepo.StorageDomainRepo
	DiskImages     clusterrepo.DiskImageRepo
	Quotas         quotarepo.QuotaRepo
}

type Resolver struct {
	deps Deps
	log  *logger.Logger
}

func NewResolver(log *logger.Logger, deps Deps) *Resolver {
	return &Resolver{deps: deps, log: log.With("component", "PermissionResolver")}
}

// Resolve never fails: unknown or inactive actors and store faults all deny.
func (r *Resolver) Resolve(ctx context.Context, actorID uuid.UUID, req Requirement) bool {
	ok, err := r.ResolveE(ctx, actorID, req)
	if err != nil {
		r.log.Error("permission lookup failed", "actor_id", actorID, "error", err)
		return false
	}
	return ok
}

// ResolveE is Resolve with store faults reported to the caller.
func (r *Resolver) ResolveE(ctx context.Context, actorID uuid.UUID, req Requirement) (bool, error) {
	if actorID == uuid.Nil {
		return false, nil
	}
	dbc := dbctx.New(ctx)
	principal, err := r.deps.Principals.GetByID(dbc, actorID)
	if err != nil {
		return false, err
	}
	if principal == nil || !principal.Active {
		return false, nil
	}
	// Any active principal satisfies an empty requirement.
	if len(req.Subjects) == 0 {
		return true, nil
	}
	groups, err := r.deps.Principals.GroupIDs(dbc, actorID)
	if err != nil {
		return false, err
	}
	principals := make([]uuid.UUID, 0, len(groups)+2)
	principals = append(principals, actorID, access.EveryoneID)
	principals = append(principals, groups...)

	for _, subject := range req.Subjects {
		objects, err := r.ancestry(dbc, subject)
		if err != nil {
			return false, err
		}
		held, err := r.deps.Permissions.HasActionGroup(dbc, principals, objects, subject.ActionGroup)
		if err != nil {
			return false, err
		}
		switch {
		case req.Mode == Any && held:
			return true, nil
		case req.Mode != Any && !held:
			return false, nil
		}
	}
	return req.Mode != Any, nil
}

// ancestry lists the subject's object and every object above it. A grant on
// any of them covers the subject.
func (r *Resolver) ancestry(dbc dbctx.Context, s Subject) ([]uuid.UUID, error) {
	out := []uuid.UUID{s.ObjectID}
	var poolID uuid.UUID

	switch s.ObjectType {
	case access.ObjectSystem:
		return out, nil
	case access.ObjectStoragePool:
		poolID = s.ObjectID
	case access.ObjectStorageDomain:
		id, err := r.poolOfDomain(dbc, s.ObjectID)
		if err != nil {
			return nil, err
		}
		poolID = id
	case access.ObjectDisk:
		if r.deps.DiskImages == nil {
			break
		}
		img, err := r.deps.DiskImages.GetByID(dbc, s.ObjectID)
		if err != nil {
			return nil, err
		}
		if img != nil {
			out = append(out, img.StorageDomainID)
			id, err := r.poolOfDomain(dbc, img.StorageDomainID)
			if err != nil {
				return nil, err
			}
			poolID = id
		}
	case access.ObjectQuota:
		if r.deps.Quotas == nil {
			break
		}
		q, err := r.deps.Quotas.GetByID(dbc, s.ObjectID)
		if err != nil {
			return nil, err
		}
		if q != nil {
			poolID = q.StoragePoolID
		}
	}

	if poolID != uuid.Nil && poolID != s.ObjectID {
		out = append(out, poolID)
	}
	return append(out, access.SystemObjectID), nil
}

func (r *Resolver) poolOfDomain(dbc dbctx.Context, domainID uuid.UUID) (uuid.UUID, error) {
	if r.deps.StorageDomains == nil {
		return uuid.Nil, nil
	}
	sd, err := r.deps.StorageDomains.GetByID(dbc, domainID)
	if err != nil || sd == nil {
		return uuid.Nil, err
	}
	return sd.StoragePoolID, nil
}
