package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
)

const bookColumns = `isbn, title, author, publisher, publish_date, price, introduction, total_copies, available_copies`

// AddBook inserts a new title or, when the ISBN already exists, merges by
// raising both copy counts. Either way one inventory row per new physical
// copy is provisioned, all in a single transaction.
func (r *repository) AddBook(ctx context.Context, book model.Book, copies int) (model.Book, error) {
	var out model.Book
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		q := `
insert into books (isbn, title, author, publisher, publish_date, price, introduction, total_copies, available_copies)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $8)
on conflict (isbn) do update
	set total_copies = books.total_copies + excluded.total_copies,
	    available_copies = books.available_copies + excluded.available_copies
returning ` + bookColumns
		if err := tx.GetContext(ctx, &out, q,
			book.ISBN, book.Title, book.Author, book.Publisher, book.PublishDate,
			book.Price, book.Introduction, copies); err != nil {
			r.log.Error("AddBook", zap.String("isbn", book.ISBN), zap.Error(err))
			return err
		}

		var existing int
		if err := tx.GetContext(ctx, &existing,
			`select count(*) from book_copies where isbn = $1`, book.ISBN); err != nil {
			return err
		}
		for i := 1; i <= copies; i++ {
			copyID := fmt.Sprintf("%s-%03d", book.ISBN, existing+i)
			if _, err := tx.ExecContext(ctx,
				`insert into book_copies (copy_id, isbn, status) values ($1, $2, $3)`,
				copyID, book.ISBN, model.CopyAvailable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return out, nil
}

func (r *repository) GetBook(ctx context.Context, isbn string) (model.Book, error) {
	q, args, err := qb.Select("isbn", "title", "author", "publisher", "publish_date", "price", "introduction", "total_copies", "available_copies").
		Column("coalesce((select avg(rating) from comments c where c.isbn = b.isbn), 0) as average_rating").
		From(booksTableName + " b").
		Where(sq.Eq{"isbn": isbn}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

// DeleteBook removes a title with all comments, reservations, copies and
// closed records. It refuses while any copy is out, any record is open or
// any reservation is pending.
func (r *repository) DeleteBook(ctx context.Context, isbn string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `select count(*) from books where isbn = $1`, isbn); err != nil {
			return err
		}
		if exists == 0 {
			return errs.ErrNotFound
		}

		var dependents int
		q := `
select (select count(*) from borrow_records where isbn = $1 and return_date is null)
     + (select count(*) from book_copies where isbn = $1 and status = $2)
     + (select count(*) from reservations where isbn = $1 and status = $3)`
		if err := tx.GetContext(ctx, &dependents, q, isbn, model.CopyBorrowed, model.ReservationPending); err != nil {
			return err
		}
		if dependents > 0 {
			return errs.ErrHasDependents
		}

		for _, del := range []string{
			`delete from comments where isbn = $1`,
			`delete from reservations where isbn = $1`,
			`delete from borrow_records where isbn = $1`,
			`delete from book_copies where isbn = $1`,
			`delete from books where isbn = $1`,
		} {
			if _, err := tx.ExecContext(ctx, del, isbn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) SearchBooks(ctx context.Context, keyword string, page, size int) (model.ListBooks, error) {
	q := qb.Select("isbn", "title", "author", "publisher", "publish_date", "price", "introduction", "total_copies", "available_copies").
		Column("coalesce((select avg(rating) from comments c where c.isbn = b.isbn), 0) as average_rating").
		From(booksTableName + " b").
		OrderBy("title")

	if keyword != "" {
		like := "%" + keyword + "%"
		q = q.Where(sq.Or{
			sq.ILike{"title": like},
			sq.ILike{"author": like},
			sq.ILike{"isbn": like},
		})
	}
	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("SearchBooks", zap.String("query", query), zap.Any("args", args))

	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}
	return model.ListBooks{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

func (r *repository) TopRatedBooks(ctx context.Context, limit int) ([]model.Book, error) {
	q := `
select ` + bookColumns + `, avg_rating as average_rating
from books b
join (
	select isbn, avg(rating) as avg_rating
	from comments
	group by isbn
) c using (isbn)
order by avg_rating desc
limit $1`
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, q, limit); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) BooksBorrowedByUser(ctx context.Context, userID string) ([]model.Book, error) {
	q := `
select ` + prefixedBookColumns("b") + `,
	coalesce((select avg(rating) from comments c where c.isbn = b.isbn), 0) as average_rating
from books b
join borrow_records br on br.isbn = b.isbn
where br.user_id = $1 and br.return_date is null
order by br.borrow_date`
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, q, userID); err != nil {
		return nil, err
	}
	return books, nil
}

func prefixedBookColumns(alias string) string {
	return fmt.Sprintf("%[1]s.isbn, %[1]s.title, %[1]s.author, %[1]s.publisher, %[1]s.publish_date, %[1]s.price, %[1]s.introduction, %[1]s.total_copies, %[1]s.available_copies", alias)
}
