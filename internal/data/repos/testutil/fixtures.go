package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/domain/cluster"
	"gorm.io/gorm"
)

func SeedPrincipal(tb testing.TB, db *gorm.DB, name string, groups ...uuid.UUID) *types.Principal {
	tb.Helper()
	now := time.Now().UTC()
	p := &types.Principal{ID: uuid.New(), Name: name, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed principal: %v", err)
	}
	for _, g := range groups {
		if err := db.Create(&types.PrincipalGroup{PrincipalID: p.ID, GroupID: g}).Error; err != nil {
			tb.Fatalf("seed principal group: %v", err)
		}
	}
	return p
}

func SeedGroup(tb testing.TB, db *gorm.DB, name string) *types.Principal {
	tb.Helper()
	now := time.Now().UTC()
	g := &types.Principal{ID: uuid.New(), Name: name, IsGroup: true, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(g).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return g
}

func Grant(tb testing.TB, db *gorm.DB, principalID, roleID, objectID uuid.UUID, objectType access.ObjectType) *types.Permission {
	tb.Helper()
	p := &types.Permission{
		ID:          uuid.New(),
		PrincipalID: principalID,
		RoleID:      roleID,
		ObjectID:    objectID,
		ObjectType:  objectType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed permission: %v", err)
	}
	return p
}

func SeedStoragePool(tb testing.TB, db *gorm.DB, name, version string) *types.StoragePool {
	tb.Helper()
	now := time.Now().UTC()
	sp := &types.StoragePool{
		ID:                   uuid.New(),
		Name:                 name,
		StorageType:          cluster.StorageTypeNFS,
		CompatibilityVersion: version,
		Status:               cluster.StoragePoolUp,
		QuotaEnforcement:     "disabled",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := db.Create(sp).Error; err != nil {
		tb.Fatalf("seed storage pool: %v", err)
	}
	return sp
}

func SeedStorageDomain(tb testing.TB, db *gorm.DB, poolID uuid.UUID, name string, available int64) *types.StorageDomain {
	tb.Helper()
	now := time.Now().UTC()
	sd := &types.StorageDomain{
		ID:             uuid.New(),
		Name:           name,
		StoragePoolID:  poolID,
		StorageType:    cluster.StorageTypeNFS,
		Status:         cluster.StorageDomainActive,
		AvailableBytes: available,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.Create(sd).Error; err != nil {
		tb.Fatalf("seed storage domain: %v", err)
	}
	return sd
}

func SeedDiskImage(tb testing.TB, db *gorm.DB, domainID uuid.UUID, alias string, size int64) *types.DiskImage {
	tb.Helper()
	now := time.Now().UTC()
	img := &types.DiskImage{
		ID:              uuid.New(),
		Alias:           alias,
		StorageDomainID: domainID,
		SizeBytes:       size,
		Format:          "raw",
		Status:          cluster.ImageOK,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.Create(img).Error; err != nil {
		tb.Fatalf("seed disk image: %v", err)
	}
	return img
}

func SeedQuota(tb testing.TB, db *gorm.DB, poolID, ownerID uuid.UUID, limit int64, unlimited bool) *types.Quota {
	tb.Helper()
	now := time.Now().UTC()
	q := &types.Quota{
		ID:            uuid.New(),
		StoragePoolID: poolID,
		OwnerID:       ownerID,
		Name:          "quota-" + ownerID.String()[:8],
		Unlimited:     unlimited,
		LimitBytes:    limit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(q).Error; err != nil {
		tb.Fatalf("seed quota: %v", err)
	}
	return q
}
