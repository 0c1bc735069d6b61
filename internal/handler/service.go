package handler

import (
	"context"

	"github.com/openshelf/lending-service/internal/model"
	"github.com/openshelf/lending-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LendingService interface {
	RegisterUser(ctx context.Context, req model.RegisterUserRequest) (model.User, error)
	AuthenticateUser(ctx context.Context, identifier, password string) (model.User, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context, page, size int) (model.ListUsers, error)
	AddReadingHours(ctx context.Context, userID string, hours float64) (model.User, error)

	GetUserFines(ctx context.Context, userID string) (float64, error)
	PayFines(ctx context.Context, userID string, amount float64, withCredit bool) (model.User, error)
	UpdateCreditScore(ctx context.Context, userID string, score int) (model.User, error)

	AddBook(ctx context.Context, req model.AddBookRequest) (model.Book, error)
	GetBook(ctx context.Context, isbn string) (model.Book, error)
	RemoveBook(ctx context.Context, isbn string) error
	SearchBooks(ctx context.Context, keyword string, page, size int) (model.ListBooks, error)
	TopRatedBooks(ctx context.Context, limit int) ([]model.Book, error)
	BooksBorrowedByUser(ctx context.Context, userID string) ([]model.Book, error)
	BorrowRecords(ctx context.Context, isbn string) ([]model.BorrowRecord, error)

	BorrowBook(ctx context.Context, userID, isbn string) (model.BorrowRecord, error)
	ReturnBook(ctx context.Context, userID, isbn string) (model.BorrowRecord, error)
	RenewBook(ctx context.Context, userID, isbn string) (model.BorrowRecord, error)

	ReserveBook(ctx context.Context, userID, isbn string) (model.Reservation, error)
	CancelReservation(ctx context.Context, userID, isbn string) error

	AddComment(ctx context.Context, userID string, req model.AddCommentRequest) (model.Comment, error)
	CommentsForBook(ctx context.Context, isbn string) ([]model.Comment, error)
}

var _ LendingService = (*service.Service)(nil)
