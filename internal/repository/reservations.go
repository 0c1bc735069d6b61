package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
)

func (r *repository) CreateReservation(ctx context.Context, userID, isbn string, at time.Time) (model.Reservation, error) {
	q, args, err := qb.Insert(reservationsTableName).
		Columns("reservation_uid", "user_id", "isbn", "status", "reserve_date").
		Values(uuid.New(), userID, isbn, model.ReservationPending, at).
		Suffix("returning reservation_uid, user_id, isbn, status, reserve_date").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var res model.Reservation
	if err := r.db.GetContext(ctx, &res, q, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Reservation{}, errs.ErrDuplicateKey
		}
		r.log.Error("CreateReservation", zap.String("q", q), zap.Any("args", args))
		return model.Reservation{}, err
	}
	return res, nil
}

func (r *repository) CancelReservation(ctx context.Context, userID, isbn string) error {
	q := `
update reservations
	set status = $3
where user_id = $1 and isbn = $2 and status = $4`
	res, err := r.db.ExecContext(ctx, q, userID, isbn, model.ReservationCancelled, model.ReservationPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
