package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
)

const userColumns = `id, email, password_hash, name, role, tier, reading_hours, fines, credit_score, had_low_credit`

func (r *repository) CreateUser(ctx context.Context, user model.User) error {
	q, args, err := qb.Insert(usersTableName).
		Columns("id", "email", "password_hash", "name", "role", "tier", "reading_hours", "fines", "credit_score", "had_low_credit").
		Values(user.ID, user.Email, user.PasswordHash, user.Name, user.Role, user.Tier, user.ReadingHours, user.Fines, user.CreditScore, user.HadLowCredit).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateKey
		}
		r.log.Error("CreateUser", zap.String("q", q), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetUser(ctx context.Context, id string) (model.User, error) {
	return r.getUserWhere(ctx, sq.Eq{"id": id})
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getUserWhere(ctx, sq.Eq{"email": email})
}

func (r *repository) getUserWhere(ctx context.Context, pred sq.Eq) (model.User, error) {
	q, args, err := qb.Select("id", "email", "password_hash", "name", "role", "tier", "reading_hours", "fines", "credit_score", "had_low_credit").
		From(usersTableName).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

// UpdateUser locks the user row, applies the mutation and writes the result
// back in one transaction. Concurrent credit deductions serialize on the
// row lock, so none are lost.
func (r *repository) UpdateUser(ctx context.Context, userID string, apply func(u *model.User) error) (model.User, error) {
	var user model.User
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := apply(&u); err != nil {
			return err
		}
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func lockUser(ctx context.Context, tx *sqlx.Tx, userID string) (model.User, error) {
	q := `select ` + userColumns + ` from users where id = $1 for update`
	var user model.User
	if err := tx.GetContext(ctx, &user, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func saveUser(ctx context.Context, tx *sqlx.Tx, u model.User) error {
	q := `
update users
	set role = $2, tier = $3, reading_hours = $4, fines = $5, credit_score = $6, had_low_credit = $7
where id = $1`
	_, err := tx.ExecContext(ctx, q, u.ID, u.Role, u.Tier, u.ReadingHours, u.Fines, u.CreditScore, u.HadLowCredit)
	return err
}

// DeleteUser refuses while the user still holds an open loan, then removes
// the user and every dependent row in one transaction.
func (r *repository) DeleteUser(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `select count(*) from users where id = $1`, id); err != nil {
			return err
		}
		if exists == 0 {
			return errs.ErrNotFound
		}

		var open int
		if err := tx.GetContext(ctx, &open,
			`select count(*) from borrow_records where user_id = $1 and return_date is null`, id); err != nil {
			return err
		}
		if open > 0 {
			return errs.ErrHasDependents
		}

		for _, q := range []string{
			`delete from comments where user_id = $1`,
			`delete from reservations where user_id = $1`,
			`delete from borrow_records where user_id = $1`,
			`delete from users where id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) ListUsers(ctx context.Context, page, size int) (model.ListUsers, error) {
	q := qb.Select("id", "email", "password_hash", "name", "role", "tier", "reading_hours", "fines", "credit_score", "had_low_credit").
		From(usersTableName).
		OrderBy("name")

	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListUsers{}, err
	}
	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return model.ListUsers{}, err
	}
	return model.ListUsers{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: len(users),
		},
		Items: users,
	}, nil
}
