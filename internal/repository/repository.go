package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	UpdateUser(ctx context.Context, userID string, apply func(u *model.User) error) (model.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, page, size int) (model.ListUsers, error)

	AddBook(ctx context.Context, book model.Book, copies int) (model.Book, error)
	GetBook(ctx context.Context, isbn string) (model.Book, error)
	DeleteBook(ctx context.Context, isbn string) error
	SearchBooks(ctx context.Context, keyword string, page, size int) (model.ListBooks, error)
	TopRatedBooks(ctx context.Context, limit int) ([]model.Book, error)
	BooksBorrowedByUser(ctx context.Context, userID string) ([]model.Book, error)

	GetOpenRecord(ctx context.Context, userID, isbn string) (model.BorrowRecord, error)
	CreateBorrow(ctx context.Context, userID, isbn string, maxOpen int, borrowDate, dueDate time.Time) (model.BorrowRecord, error)
	CloseBorrow(ctx context.Context, recordID int, returnDate time.Time, fine float64, deduction int) (model.BorrowRecord, model.User, error)
	RenewDueDate(ctx context.Context, userID, isbn string, days int) (model.BorrowRecord, error)
	ListBorrowRecords(ctx context.Context, isbn string) ([]model.BorrowRecord, error)
	ListSweepCandidates(ctx context.Context, dueBefore time.Time) ([]model.BorrowRecord, error)
	ApplySweepPenalty(ctx context.Context, recordID, points int, at time.Time) (model.User, error)

	CreateReservation(ctx context.Context, userID, isbn string, at time.Time) (model.Reservation, error)
	CancelReservation(ctx context.Context, userID, isbn string) error

	AddComment(ctx context.Context, comment model.Comment) (model.Comment, error)
	CommentsForBook(ctx context.Context, isbn string) ([]model.Comment, error)
	AverageRating(ctx context.Context, isbn string) (float64, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName         = `users`
	booksTableName         = `books`
	bookCopiesTableName    = `book_copies`
	borrowRecordsTableName = `borrow_records`
	reservationsTableName  = `reservations`
	commentsTableName      = `comments`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// isUniqueViolation maps a postgres unique-constraint error so callers can
// surface duplicate emails, ISBNs and open loans as ErrDuplicateKey.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// inTx runs fn inside a transaction, rolling back on any error so no
// partial write of a multi-statement operation survives.
func (r *repository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("tx rollback", zap.Error(rbErr))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}
