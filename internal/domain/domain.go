package domain

import (
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/domain/audit"
	"github.com/yungbote/dcengine/internal/domain/cluster"
	"github.com/yungbote/dcengine/internal/domain/quota"
	"github.com/yungbote/dcengine/internal/domain/transfer"
)

type (
	StoragePool   = cluster.StoragePool
	Network       = cluster.Network
	StorageDomain = cluster.StorageDomain
	DiskImage     = cluster.DiskImage

	Role            = access.Role
	RoleActionGroup = access.RoleActionGroup
	Permission      = access.Permission
	Principal       = access.Principal
	PrincipalGroup  = access.PrincipalGroup

	Quota            = quota.Quota
	QuotaReservation = quota.Reservation

	AuditRecord = audit.Record

	TransferSession = transfer.Session
)

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&StoragePool{},
		&Network{},
		&StorageDomain{},
		&DiskImage{},

		&Role{},
		&RoleActionGroup{},
		&Permission{},
		&Principal{},
		&PrincipalGroup{},

		&Quota{},
		&QuotaReservation{},

		&AuditRecord{},

		&TransferSession{},
	}
}
