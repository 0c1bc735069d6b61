package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/model"
)

func (r *repository) AddComment(ctx context.Context, comment model.Comment) (model.Comment, error) {
	q, args, err := qb.Insert(commentsTableName).
		Columns("user_id", "isbn", "content", "rating", "created_at").
		Values(comment.UserID, comment.ISBN, comment.Content, comment.Rating, comment.CreatedAt).
		Suffix("returning id, user_id, isbn, content, rating, created_at").
		ToSql()
	if err != nil {
		return model.Comment{}, err
	}
	var out model.Comment
	if err := r.db.GetContext(ctx, &out, q, args...); err != nil {
		r.log.Error("AddComment", zap.String("q", q), zap.Any("args", args))
		return model.Comment{}, err
	}
	return out, nil
}

func (r *repository) CommentsForBook(ctx context.Context, isbn string) ([]model.Comment, error) {
	q, args, err := qb.Select("id", "user_id", "isbn", "content", "rating", "created_at").
		From(commentsTableName).
		Where(sq.Eq{"isbn": isbn}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var comments []model.Comment
	if err := r.db.SelectContext(ctx, &comments, q, args...); err != nil {
		return nil, err
	}
	return comments, nil
}

// AverageRating is 0.0 for a book with no ratings, never NULL.
func (r *repository) AverageRating(ctx context.Context, isbn string) (float64, error) {
	q := `select coalesce(avg(rating), 0) from comments where isbn = $1`
	var avg float64
	if err := r.db.GetContext(ctx, &avg, q, isbn); err != nil {
		return 0, err
	}
	return avg, nil
}
