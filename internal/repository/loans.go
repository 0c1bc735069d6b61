package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
)

const recordColumns = `id, user_id, isbn, borrow_date, due_date, return_date, fine, credit_deduction, sweep_penalized_at`

func (r *repository) GetOpenRecord(ctx context.Context, userID, isbn string) (model.BorrowRecord, error) {
	q, args, err := qb.Select("id", "user_id", "isbn", "borrow_date", "due_date", "return_date", "fine", "credit_deduction", "sweep_penalized_at").
		From(borrowRecordsTableName).
		Where(sq.Eq{"user_id": userID, "isbn": isbn}).
		Where("return_date is null").
		Limit(1).
		ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}
	var rec model.BorrowRecord
	if err := r.db.GetContext(ctx, &rec, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errs.ErrNoActiveLoan
		}
		return model.BorrowRecord{}, err
	}
	return rec, nil
}

// CreateBorrow checks the open-loan limit and takes a copy and opens a
// record as one atomic unit. The user-row lock serializes borrows by the
// same user, so racing borrows of different titles see each other's open
// records and cannot oversubscribe the limit. The guarded decrement keeps
// available_copies from going negative under concurrent borrows; the
// partial unique index rejects a second open loan of the same title by
// the same user.
func (r *repository) CreateBorrow(ctx context.Context, userID, isbn string, maxOpen int, borrowDate, dueDate time.Time) (model.BorrowRecord, error) {
	var rec model.BorrowRecord
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		var open int
		if err := tx.GetContext(ctx, &open,
			`select count(*) from borrow_records where user_id = $1 and return_date is null`, userID); err != nil {
			return err
		}
		if open >= maxOpen {
			return errs.ErrBorrowLimit
		}

		res, err := tx.ExecContext(ctx, `
update books
	set available_copies = available_copies - 1
where isbn = $1 and available_copies > 0`, isbn)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errs.ErrNoCopyAvailable
		}

		if _, err := tx.ExecContext(ctx, `
update book_copies
	set status = $2
where copy_id = (
	select copy_id from book_copies
	where isbn = $1 and status = $3
	limit 1
	for update skip locked
)`, isbn, model.CopyBorrowed, model.CopyAvailable); err != nil {
			return err
		}

		q := `
insert into borrow_records (user_id, isbn, borrow_date, due_date)
	values ($1, $2, $3, $4)
returning ` + recordColumns
		if err := tx.GetContext(ctx, &rec, q, userID, isbn, borrowDate, dueDate); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrDuplicateKey
			}
			r.log.Error("CreateBorrow", zap.String("user", userID), zap.String("isbn", isbn), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return model.BorrowRecord{}, err
	}
	return rec, nil
}

// CloseBorrow closes the open record, puts the copy back and applies the
// fine and credit deduction to the locked user row, all in one
// transaction. A retried return finds no open record and fails with
// ErrNoActiveLoan instead of double-charging: the closed record itself
// carries the applied amounts.
func (r *repository) CloseBorrow(ctx context.Context, recordID int, returnDate time.Time, fine float64, deduction int) (model.BorrowRecord, model.User, error) {
	var (
		rec  model.BorrowRecord
		user model.User
	)
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		q := `
update borrow_records
	set return_date = $2, fine = $3, credit_deduction = $4
where id = $1 and return_date is null
returning ` + recordColumns
		if err := tx.GetContext(ctx, &rec, q, recordID, returnDate, fine, deduction); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNoActiveLoan
			}
			return err
		}

		res, err := tx.ExecContext(ctx, `
update books
	set available_copies = available_copies + 1
where isbn = $1 and available_copies < total_copies`, rec.ISBN)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errors.Errorf("return %s: all copies already in", rec.ISBN)
		}

		if _, err := tx.ExecContext(ctx, `
update book_copies
	set status = $2
where copy_id = (
	select copy_id from book_copies
	where isbn = $1 and status = $3
	limit 1
	for update skip locked
)`, rec.ISBN, model.CopyAvailable, model.CopyBorrowed); err != nil {
			return err
		}

		u, err := lockUser(ctx, tx, rec.UserID)
		if err != nil {
			return err
		}
		u.AddFine(fine)
		if deduction > 0 {
			u.DeductCreditScore(deduction)
		}
		if err := saveUser(ctx, tx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return model.BorrowRecord{}, model.User{}, err
	}
	return rec, user, nil
}

// RenewDueDate extends the due date of the open record by the given number
// of days, counted from the current due date rather than from today.
func (r *repository) RenewDueDate(ctx context.Context, userID, isbn string, days int) (model.BorrowRecord, error) {
	q := `
update borrow_records
	set due_date = due_date + $3 * interval '1 day'
where user_id = $1 and isbn = $2 and return_date is null
returning ` + recordColumns
	var rec model.BorrowRecord
	if err := r.db.GetContext(ctx, &rec, q, userID, isbn, days); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errs.ErrNoActiveLoan
		}
		return model.BorrowRecord{}, err
	}
	return rec, nil
}

func (r *repository) ListBorrowRecords(ctx context.Context, isbn string) ([]model.BorrowRecord, error) {
	q := qb.Select("id", "user_id", "isbn", "borrow_date", "due_date", "return_date", "fine", "credit_deduction", "sweep_penalized_at").
		From(borrowRecordsTableName).
		OrderBy("borrow_date desc")
	if isbn != "" {
		q = q.Where(sq.Eq{"isbn": isbn})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var recs []model.BorrowRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListSweepCandidates returns open records past the given due-date cutoff
// that have not been penalized by the sweep yet.
func (r *repository) ListSweepCandidates(ctx context.Context, dueBefore time.Time) ([]model.BorrowRecord, error) {
	q := `
select ` + recordColumns + ` from borrow_records
where return_date is null and sweep_penalized_at is null and due_date < $1
order by due_date`
	var recs []model.BorrowRecord
	if err := r.db.SelectContext(ctx, &recs, q, dueBefore); err != nil {
		return nil, err
	}
	return recs, nil
}

// ApplySweepPenalty deducts the extra overdue penalty once per record.
// The sweep_penalized_at guard makes a rerun of the sweep a no-op.
func (r *repository) ApplySweepPenalty(ctx context.Context, recordID, points int, at time.Time) (model.User, error) {
	var user model.User
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var userID string
		q := `
update borrow_records
	set sweep_penalized_at = $2
where id = $1 and sweep_penalized_at is null and return_date is null
returning user_id`
		if err := tx.GetContext(ctx, &userID, q, recordID, at); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}

		u, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		u.DeductCreditScore(points)
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
