// Package storagepool holds the data-center creation command.
package storagepool

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	accessrepo "github.com/yungbote/dcengine/internal/data/repos/access"
	clusterrepo "github.com/yungbote/dcengine/internal/data/repos/cluster"
	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/configstore"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/engine/versioning"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

const ActionAddEmptyStoragePool command.ActionType = "AddEmptyStoragePool"

const (
	EventAdded       = "USER_ADD_STORAGE_POOL"
	EventAddFailed   = "USER_ADD_STORAGE_POOL_FAILED"
	networkDescr     = "Management Network"
	quotaEnforcement = "disabled"
)

// Rejection codes.
const (
	ReasonNameExists          = "ACTION_TYPE_FAILED_STORAGE_POOL_NAME_ALREADY_EXIST"
	ReasonNameTooLong         = "ACTION_TYPE_FAILED_NAME_LENGTH_IS_TOO_LONG"
	ReasonNameEmpty           = "ACTION_TYPE_FAILED_NAME_MAY_NOT_BE_EMPTY"
	ReasonNameInvalid         = "ACTION_TYPE_FAILED_INVALID_NAME"
	ReasonUnsupportedVersion  = "ACTION_TYPE_FAILED_UNSUPPORTED_VERSION"
	ReasonLocalStorageVersion = "DATA_CENTER_LOCAL_STORAGE_NOT_SUPPORTED_IN_CURRENT_VERSION"
	ReasonInvalidStorageType  = "ACTION_TYPE_FAILED_INVALID_STORAGE_TYPE"
)

var validName = regexp.MustCompile(`^[\p{L}0-9._-]+$`)

type Params struct {
	Name                 string               `json:"name"`
	Description          string               `json:"description,omitempty"`
	StorageType          dcluster.StorageType `json:"storage_type"`
	CompatibilityVersion string               `json:"compatibility_version"`
}

type Deps struct {
	Log         *logger.Logger
	Runner      store.TxRunner
	Hooks       store.Hooks
	Pools       clusterrepo.StoragePoolRepo
	Networks    clusterrepo.NetworkRepo
	Quotas      quotarepo.QuotaRepo
	Permissions accessrepo.PermissionRepo
	Config      configstore.Reader
	Versions    *versioning.Oracle
}

type Handler struct {
	deps   Deps
	writer store.Writer
	log    *logger.Logger
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		writer: store.Writer{Runner: deps.Runner, Hooks: deps.Hooks},
		log:    deps.Log.With("command", string(ActionAddEmptyStoragePool)),
	}
}

func Register(reg *command.Registry, h *Handler) error {
	return command.Register(reg, command.Definition{Type: ActionAddEmptyStoragePool, FailureEvent: EventAddFailed},
		func(p Params, ec command.ExecContext) command.Command {
			return &AddEmptyStoragePool{h: h, params: normalize(p), ec: ec}
		})
}

func normalize(p Params) Params {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.StorageType = dcluster.StorageType(strings.ToLower(strings.TrimSpace(string(p.StorageType))))
	p.CompatibilityVersion = strings.TrimSpace(p.CompatibilityVersion)
	return p
}

// AddEmptyStoragePool creates a data center with no attached storage.
type AddEmptyStoragePool struct {
	h      *Handler
	params Params
	ec     command.ExecContext
	poolID uuid.UUID
}

var (
	_ command.Compensator = (*AddEmptyStoragePool)(nil)
	_ command.Targeter    = (*AddEmptyStoragePool)(nil)
)

func (c *AddEmptyStoragePool) Type() command.ActionType { return ActionAddEmptyStoragePool }

func (c *AddEmptyStoragePool) PermissionSubjects() permissions.Requirement {
	return permissions.AllOf(permissions.System(access.ActionGroupCreateStoragePool))
}

func (c *AddEmptyStoragePool) AuditEvents() command.AuditEvents {
	return command.AuditEvents{Success: EventAdded, Failure: EventAddFailed}
}

func (c *AddEmptyStoragePool) AuditTarget() string { return c.params.Name }

func (c *AddEmptyStoragePool) Validate(dbc dbctx.Context, v *command.Validation) {
	p := c.params
	nameOK := v.Check(p.Name != "", ReasonNameEmpty, "storage pool name may not be empty")
	if nameOK {
		limit := c.h.deps.Config.Int(configstore.StoragePoolNameSizeLimit)
		if limit > 0 && len([]rune(p.Name)) > limit {
			v.Failf(ReasonNameTooLong, "storage pool name exceeds %d characters", limit)
			nameOK = false
		}
		if !validName.MatchString(p.Name) {
			v.Fail(ReasonNameInvalid, "storage pool name may only contain letters, digits, '.', '_' and '-'")
			nameOK = false
		}
	}
	typeOK := v.Check(p.StorageType.Known(), ReasonInvalidStorageType, "unknown storage type")
	if nameOK {
		exists, err := c.h.deps.Pools.NameExists(dbc, p.Name)
		if err != nil {
			v.Fault(err)
			return
		}
		v.Check(!exists, ReasonNameExists, "a storage pool with this name already exists")
	}
	if !v.Check(c.h.deps.Versions.IsSupported(p.CompatibilityVersion), ReasonUnsupportedVersion, "compatibility version is not supported") {
		return
	}
	if typeOK && p.StorageType == dcluster.StorageTypeLocalFS {
		v.Check(c.h.deps.Versions.IsFeatureEnabledForVersion(configstore.LocalStorageEnabled, p.CompatibilityVersion),
			ReasonLocalStorageVersion, "local storage is not supported in this compatibility version")
	}
}

func (c *AddEmptyStoragePool) Execute(ctx context.Context) (any, error) {
	const op = "storagepool.add"
	d := c.h.deps
	now := time.Now().UTC()
	pool := &types.StoragePool{
		ID:                   uuid.New(),
		Name:                 c.params.Name,
		Description:          c.params.Description,
		StorageType:          c.params.StorageType,
		CompatibilityVersion: c.params.CompatibilityVersion,
		Status:               dcluster.StoragePoolUninitialized,
		QuotaEnforcement:     quotaEnforcement,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	c.poolID = pool.ID
	err := c.h.writer.Execute(dbctx.New(ctx), op, func(dbc dbctx.Context) error {
		if err := d.Pools.Create(dbc, pool); err != nil {
			if store.IsUniqueViolation(err) {
				return command.Reject(command.Reason{Code: ReasonNameExists, Message: "a storage pool with this name already exists"})
			}
			return err
		}
		q := quota.NewUnlimited(pool.ID, access.EveryoneID)
		if err := d.Quotas.Create(dbc, q); err != nil {
			return err
		}
		if err := d.Permissions.Create(dbc, &types.Permission{
			PrincipalID: access.EveryoneID,
			RoleID:      access.RoleQuotaConsumer,
			ObjectID:    q.ID,
			ObjectType:  access.ObjectQuota,
		}); err != nil {
			return err
		}
		return d.Networks.Create(dbc, &types.Network{
			Name:          d.Config.String(configstore.ManagementNetwork),
			Description:   networkDescr,
			StoragePoolID: pool.ID,
			VMNetwork:     true,
			MTU:           d.Config.Int(configstore.DefaultMTU),
		})
	})
	if err != nil {
		return nil, err
	}
	c.h.log.Info("storage pool created", "storage_pool_id", pool.ID, "name", pool.Name, "actor_id", c.ec.ActorID)
	return pool.ID, nil
}

// Compensate removes the pool this invocation created, if it is still
// visible. A pool created by a concurrent winner is never touched.
func (c *AddEmptyStoragePool) Compensate(ctx context.Context) error {
	d := c.h.deps
	return c.h.writer.Execute(dbctx.New(ctx), "storagepool.add.compensate", func(dbc dbctx.Context) error {
		if c.poolID == uuid.Nil {
			return nil
		}
		pool, err := d.Pools.GetByID(dbc, c.poolID)
		if err != nil || pool == nil {
			return err
		}
		quotas, err := d.Quotas.ListByPool(dbc, pool.ID)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(quotas)+1)
		ids = append(ids, pool.ID)
		for _, q := range quotas {
			ids = append(ids, q.ID)
		}
		if err := d.Permissions.DeleteByObjects(dbc, ids); err != nil {
			return err
		}
		if err := d.Quotas.DeleteByPool(dbc, pool.ID); err != nil {
			return err
		}
		return d.Pools.Delete(dbc, pool.ID)
	})
}
