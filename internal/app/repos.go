package app

import (
	"gorm.io/gorm"

	accessrepo "github.com/yungbote/dcengine/internal/data/repos/access"
	auditrepo "github.com/yungbote/dcengine/internal/data/repos/audit"
	clusterrepo "github.com/yungbote/dcengine/internal/data/repos/cluster"
	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	transferrepo "github.com/yungbote/dcengine/internal/data/repos/transfer"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type Repos struct {
	Pools        clusterrepo.StoragePoolRepo
	Networks     clusterrepo.NetworkRepo
	Domains      clusterrepo.StorageDomainRepo
	Images       clusterrepo.DiskImageRepo
	Principals   accessrepo.PrincipalRepo
	Permissions  accessrepo.PermissionRepo
	Quotas       quotarepo.QuotaRepo
	Reservations quotarepo.ReservationRepo
	Sessions     transferrepo.SessionRepo
	AuditLog     auditrepo.AuditLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Pools:        clusterrepo.NewStoragePoolRepo(db, log),
		Networks:     clusterrepo.NewNetworkRepo(db, log),
		Domains:      clusterrepo.NewStorageDomainRepo(db, log),
		Images:       clusterrepo.NewDiskImageRepo(db, log),
		Principals:   accessrepo.NewPrincipalRepo(db, log),
		Permissions:  accessrepo.NewPermissionRepo(db, log),
		Quotas:       quotarepo.NewQuotaRepo(db, log),
		Reservations: quotarepo.NewReservationRepo(db, log),
		Sessions:     transferrepo.NewSessionRepo(db, log),
		AuditLog:     auditrepo.NewAuditLogRepo(db, log),
	}
}
