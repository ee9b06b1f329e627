package quota

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	dquota "github.com/yungbote/dcengine/internal/domain/quota"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type ReservationRepo interface {
	Create(dbc dbctx.Context, res *types.QuotaReservation) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QuotaReservation, error)
	// Transition moves a reservation from `from` to `to` and reports whether it won.
	Transition(dbc dbctx.Context, id uuid.UUID, from, to dquota.ReservationStatus) (bool, error)
	SumOpen(dbc dbctx.Context, quotaID uuid.UUID) (int64, error)
}

type reservationRepo struct {
	db  *gorm.DB
	log *logger.Logger
	cas store.CASGuard
}

func NewReservationRepo(db *gorm.DB, baseLog *logger.Logger) ReservationRepo {
	return &reservationRepo{db: db, log: baseLog.With("repo", "ReservationRepo"), cas: store.NewCASGuard(db)}
}

func (r *reservationRepo) Create(dbc dbctx.Context, res *types.QuotaReservation) error {
	if res == nil {
		return nil
	}
	now := time.Now().UTC()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	return dbc.DB(r.db).Create(res).Error
}

func (r *reservationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QuotaReservation, error) {
	var res types.QuotaReservation
	err := dbc.DB(r.db).Where("id = ?", id).Take(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) Transition(dbc dbctx.Context, id uuid.UUID, from, to dquota.ReservationStatus) (bool, error) {
	return r.cas.UpdateByStatus(dbc, types.QuotaReservation{}.TableName(), id, []string{string(from)}, map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	})
}

func (r *reservationRepo) SumOpen(dbc dbctx.Context, quotaID uuid.UUID) (int64, error) {
	var total int64
	if err := dbc.DB(r.db).
		Model(&types.QuotaReservation{}).
		Where("quota_id = ? AND status = ?", quotaID, string(dquota.ReservationReserved)).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
