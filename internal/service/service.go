package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
	"github.com/openshelf/lending-service/internal/notify"
	"github.com/openshelf/lending-service/internal/repository"
	"github.com/openshelf/lending-service/pkg/auth"
	"github.com/openshelf/lending-service/pkg/kafka"
)

type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	notifier notify.Notifier
	policy   Policy

	// injectable clock, time.Now in production
	now func() time.Time
}

func NewService(repo repository.Repository, notifier notify.Notifier, policy Policy, log *zap.Logger) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// --- users ---

func (s *Service) RegisterUser(ctx context.Context, req model.RegisterUserRequest) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "hash password")
	}
	user := model.NewUser(uuid.NewString(), req.Email, string(hash), req.Name, auth.RoleReader)
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// AdminSeed is the startup-provisioned admin account. Registration only
// creates readers, so without the seed no token could ever reach the
// admin routes.
type AdminSeed struct {
	Email    string `envconfig:"ADMIN_EMAIL"`
	Password string `envconfig:"ADMIN_PASSWORD" json:"-"`
	Name     string `envconfig:"ADMIN_NAME" default:"admin"`
}

// EnsureAdmin creates the configured admin account unless it already
// exists. An empty seed is a no-op.
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed) error {
	if seed.Email == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	user := model.NewUser(uuid.NewString(), seed.Email, string(hash), seed.Name, auth.RoleAdmin)
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, errs.ErrDuplicateKey) {
			return nil
		}
		return err
	}
	s.log.Info("admin account provisioned", zap.String("email", seed.Email))
	return nil
}

// AuthenticateUser accepts an email or a user id, the way the desktop
// login form did.
func (s *Service) AuthenticateUser(ctx context.Context, identifier, password string) (model.User, error) {
	var (
		user model.User
		err  error
	)
	if isEmail(identifier) {
		user, err = s.repo.GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.repo.GetUser(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.User{}, errs.ErrInvalidCredentials
		}
		return model.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return model.User{}, errs.ErrInvalidCredentials
	}
	return user, nil
}

func isEmail(identifier string) bool {
	for _, r := range identifier {
		if r == '@' {
			return true
		}
	}
	return false
}

func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.repo.DeleteUser(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context, page, size int) (model.ListUsers, error) {
	return s.repo.ListUsers(ctx, page, size)
}

// AddReadingHours accumulates reading time and may trigger the automatic
// Normal -> Super upgrade.
func (s *Service) AddReadingHours(ctx context.Context, userID string, hours float64) (model.User, error) {
	if hours <= 0 {
		return model.User{}, errors.New("hours must be positive")
	}
	var upgraded bool
	user, err := s.repo.UpdateUser(ctx, userID, func(u *model.User) error {
		upgraded = u.AddReadingHours(hours)
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	if upgraded {
		s.notifier.Notify(kafka.EventNotification{ //nolint:errcheck
			Kind:        kafka.EventTierUpgraded,
			UserID:      user.ID,
			CreditScore: user.CreditScore,
			Message:     "upgraded to super reader: 8 books, 28 days",
			At:          s.now(),
		})
	}
	return user, nil
}

// --- fines / credit ---

func (s *Service) GetUserFines(ctx context.Context, userID string) (float64, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Fines, nil
}

// PayFines reduces the fine balance. With withCredit set the payment also
// restores credit score at one point per currency unit.
func (s *Service) PayFines(ctx context.Context, userID string, amount float64, withCredit bool) (model.User, error) {
	if amount <= 0 {
		return model.User{}, errors.New("amount must be positive")
	}
	return s.repo.UpdateUser(ctx, userID, func(u *model.User) error {
		if withCredit {
			u.PayFineWithCredit(amount)
		} else {
			u.PayFine(amount)
		}
		return nil
	})
}

func (s *Service) UpdateCreditScore(ctx context.Context, userID string, score int) (model.User, error) {
	if score < 0 || score > 150 {
		return model.User{}, errors.Errorf("score %d out of range [0,150]", score)
	}
	return s.repo.UpdateUser(ctx, userID, func(u *model.User) error {
		u.SetCreditScore(score)
		return nil
	})
}

// --- catalog ---

func (s *Service) AddBook(ctx context.Context, req model.AddBookRequest) (model.Book, error) {
	book := model.Book{
		ISBN:         req.ISBN,
		Title:        req.Title,
		Author:       req.Author,
		Publisher:    req.Publisher,
		Price:        req.Price,
		Introduction: req.Introduction,
	}
	if req.PublishDate != "" {
		d, err := time.Parse(time.DateOnly, req.PublishDate)
		if err != nil {
			return model.Book{}, errors.Wrap(err, "publishDate")
		}
		book.PublishDate = &d
	}
	return s.repo.AddBook(ctx, book, req.Copies)
}

func (s *Service) GetBook(ctx context.Context, isbn string) (model.Book, error) {
	return s.repo.GetBook(ctx, isbn)
}

func (s *Service) RemoveBook(ctx context.Context, isbn string) error {
	return s.repo.DeleteBook(ctx, isbn)
}

func (s *Service) SearchBooks(ctx context.Context, keyword string, page, size int) (model.ListBooks, error) {
	return s.repo.SearchBooks(ctx, keyword, page, size)
}

func (s *Service) TopRatedBooks(ctx context.Context, limit int) ([]model.Book, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.TopRatedBooks(ctx, limit)
}

func (s *Service) BooksBorrowedByUser(ctx context.Context, userID string) ([]model.Book, error) {
	return s.repo.BooksBorrowedByUser(ctx, userID)
}

func (s *Service) BorrowRecords(ctx context.Context, isbn string) ([]model.BorrowRecord, error) {
	return s.repo.ListBorrowRecords(ctx, isbn)
}

// --- lending ---

// BorrowBook checks eligibility in a fixed order, first failure wins:
// existence, credit score, borrow limit, copy availability. The limit is
// enforced again under the user-row lock inside the borrow transaction,
// so racing borrows of different titles cannot oversubscribe it.
func (s *Service) BorrowBook(ctx context.Context, userID, isbn string) (model.BorrowRecord, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	if _, err := s.repo.GetBook(ctx, isbn); err != nil {
		return model.BorrowRecord{}, err
	}

	if !user.CanBorrow() {
		return model.BorrowRecord{}, errs.ErrCreditTooLow
	}

	borrowDate := s.now()
	dueDate := borrowDate.AddDate(0, 0, user.BorrowDays())
	rec, err := s.repo.CreateBorrow(ctx, userID, isbn, user.MaxBorrowCount(), borrowDate, dueDate)
	if err != nil {
		return model.BorrowRecord{}, err
	}
	s.log.Info("borrowed",
		zap.String("user", userID), zap.String("isbn", isbn),
		zap.Time("due", rec.DueDate))
	return rec, nil
}

// ReturnBook closes the open loan, computes overdue fine and tiered
// credit deduction and applies both atomically with the copy increment.
func (s *Service) ReturnBook(ctx context.Context, userID, isbn string) (model.BorrowRecord, error) {
	rec, err := s.repo.GetOpenRecord(ctx, userID, isbn)
	if err != nil {
		return model.BorrowRecord{}, err
	}

	returnDate := s.now()
	days := daysOverdue(rec.DueDate, returnDate)

	var fine float64
	if days > 0 {
		fine = float64(days) * finePerDay
	}
	deduction := overduePenalty(days)
	if !s.policy.CombinePenalties && rec.SweepPenalizedAt != nil {
		// the sweep already charged this lateness window
		deduction -= sweepPenaltyPoints
		if deduction < 0 {
			deduction = 0
		}
	}

	closed, user, err := s.repo.CloseBorrow(ctx, rec.ID, returnDate, fine, deduction)
	if err != nil {
		return model.BorrowRecord{}, err
	}

	if deduction > 0 {
		s.notifier.Notify(kafka.EventNotification{ //nolint:errcheck
			Kind:        kafka.EventCreditDeducted,
			UserID:      user.ID,
			ISBN:        isbn,
			Points:      deduction,
			CreditScore: user.CreditScore,
			Message:     fmt.Sprintf("returned %d days overdue", days),
			At:          returnDate,
		})
	}
	return closed, nil
}

// RenewBook extends the due date by a fixed two weeks from the current
// due date. Renewal count is deliberately uncapped.
func (s *Service) RenewBook(ctx context.Context, userID, isbn string) (model.BorrowRecord, error) {
	return s.repo.RenewDueDate(ctx, userID, isbn, renewDays)
}

// --- reservations ---

func (s *Service) ReserveBook(ctx context.Context, userID, isbn string) (model.Reservation, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return model.Reservation{}, err
	}
	if _, err := s.repo.GetBook(ctx, isbn); err != nil {
		return model.Reservation{}, err
	}
	return s.repo.CreateReservation(ctx, userID, isbn, s.now())
}

func (s *Service) CancelReservation(ctx context.Context, userID, isbn string) error {
	return s.repo.CancelReservation(ctx, userID, isbn)
}

// --- comments ---

func (s *Service) AddComment(ctx context.Context, userID string, req model.AddCommentRequest) (model.Comment, error) {
	if _, err := s.repo.GetBook(ctx, req.ISBN); err != nil {
		return model.Comment{}, err
	}
	return s.repo.AddComment(ctx, model.Comment{
		UserID:    userID,
		ISBN:      req.ISBN,
		Content:   req.Content,
		Rating:    req.Rating,
		CreatedAt: s.now(),
	})
}

func (s *Service) CommentsForBook(ctx context.Context, isbn string) ([]model.Comment, error) {
	return s.repo.CommentsForBook(ctx, isbn)
}

func (s *Service) AverageRating(ctx context.Context, isbn string) (float64, error) {
	return s.repo.AverageRating(ctx, isbn)
}
