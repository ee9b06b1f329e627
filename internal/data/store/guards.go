package store

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"gorm.io/gorm"
)

// CASGuard provides compare-and-set helpers for guarded writes.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	db := dbc.DB(g.db)
	if db == nil {
		return nil, ValidationError("missing db transaction context")
	}
	return db, nil
}

// UpdateByStatus updates a row only when id+status guard matches.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, table string, id uuid.UUID, allowedStatuses []string, updates map[string]any) (bool, error) {
	return g.UpdateWhere(dbc, table, id, allowedStatuses, "", nil, updates)
}

// UpdateWhere updates a row when id+status match and the extra predicate holds.
func (g CASGuard) UpdateWhere(dbc dbctx.Context, table string, id uuid.UUID, allowedStatuses []string, predicate string, args []any, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, ValidationError("table and id are required for guarded update")
	}
	if len(allowedStatuses) == 0 {
		return false, ValidationError("allowedStatuses must not be empty")
	}
	q := db.Table(table).Where("id = ? AND status IN ?", id, allowedStatuses)
	if strings.TrimSpace(predicate) != "" {
		q = q.Where(predicate, args...)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}
