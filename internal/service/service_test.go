package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
	"github.com/openshelf/lending-service/internal/notify"
	mock_repository "github.com/openshelf/lending-service/internal/repository/mocks"
	"github.com/openshelf/lending-service/pkg/auth"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, policy Policy) (*Service, *mock_repository.MockRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mock_repository.NewMockRepository(ctrl)
	svc := NewService(repo, notify.Nop(), policy, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func TestService_BorrowBook(t *testing.T) {
	ctx := context.Background()
	const (
		userID = "u-1"
		isbn   = "978-0134190440"
	)

	tests := []struct {
		name        string
		user        model.User
		wantMaxOpen int
		repoErr     error
		wantErr     error
	}{
		{
			name:        "ok",
			user:        model.User{ID: userID, Tier: model.TierNormal, CreditScore: 100},
			wantMaxOpen: 5,
		},
		{
			name:        "super tier passes its higher limit",
			user:        model.User{ID: userID, Tier: model.TierSuper, CreditScore: 120},
			wantMaxOpen: 8,
		},
		{
			name:        "limit reached inside the transaction",
			user:        model.User{ID: userID, Tier: model.TierNormal, CreditScore: 100},
			wantMaxOpen: 5,
			repoErr:     errs.ErrBorrowLimit,
			wantErr:     errs.ErrBorrowLimit,
		},
		{
			name:        "no copy available",
			user:        model.User{ID: userID, Tier: model.TierNormal, CreditScore: 100},
			wantMaxOpen: 5,
			repoErr:     errs.ErrNoCopyAvailable,
			wantErr:     errs.ErrNoCopyAvailable,
		},
		{
			name:        "second open loan of the same title",
			user:        model.User{ID: userID, Tier: model.TierNormal, CreditScore: 100},
			wantMaxOpen: 5,
			repoErr:     errs.ErrDuplicateKey,
			wantErr:     errs.ErrDuplicateKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t, Policy{})

			repo.EXPECT().GetUser(ctx, userID).Return(tt.user, nil)
			repo.EXPECT().GetBook(ctx, isbn).
				Return(model.Book{ISBN: isbn, TotalCopies: 3, AvailableCopies: 2}, nil)

			wantDue := testNow.AddDate(0, 0, tt.user.BorrowDays())
			call := repo.EXPECT().CreateBorrow(ctx, userID, isbn, tt.wantMaxOpen, testNow, wantDue)
			if tt.repoErr != nil {
				call.Return(model.BorrowRecord{}, tt.repoErr)
			} else {
				call.Return(model.BorrowRecord{ID: 1, UserID: userID, ISBN: isbn, BorrowDate: testNow, DueDate: wantDue}, nil)
			}

			rec, err := svc.BorrowBook(ctx, userID, isbn)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, wantDue, rec.DueDate)
		})
	}
}

func TestService_BorrowBook_CreditTooLow(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	repo.EXPECT().GetUser(ctx, "u-1").
		Return(model.User{ID: "u-1", CreditScore: 89}, nil)
	repo.EXPECT().GetBook(ctx, "isbn-1").
		Return(model.Book{ISBN: "isbn-1", AvailableCopies: 2}, nil)

	_, err := svc.BorrowBook(ctx, "u-1", "isbn-1")
	require.ErrorIs(t, err, errs.ErrCreditTooLow)
}

func TestService_BorrowBook_UserNotFound(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	repo.EXPECT().GetUser(ctx, "nope").Return(model.User{}, errs.ErrNotFound)

	_, err := svc.BorrowBook(ctx, "nope", "isbn-1")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_ReturnBook(t *testing.T) {
	ctx := context.Background()
	const (
		userID = "u-1"
		isbn   = "isbn-1"
	)

	tests := []struct {
		name          string
		policy        Policy
		dueDate       time.Time
		sweptAt       *time.Time
		wantFine      float64
		wantDeduction int
	}{
		{
			name:    "on time",
			dueDate: testNow.AddDate(0, 0, 3),
		},
		{
			name:          "three days overdue",
			dueDate:       testNow.AddDate(0, 0, -3),
			wantFine:      1.5,
			wantDeduction: 2,
		},
		{
			name:          "ten days overdue",
			dueDate:       testNow.AddDate(0, 0, -10),
			wantFine:      5,
			wantDeduction: 5,
		},
		{
			name:          "sweep already penalized",
			dueDate:       testNow.AddDate(0, 0, -40),
			sweptAt:       &testNow,
			wantFine:      20,
			wantDeduction: 0,
		},
		{
			name:          "sweep penalized with combined penalties",
			policy:        Policy{CombinePenalties: true},
			dueDate:       testNow.AddDate(0, 0, -40),
			sweptAt:       &testNow,
			wantFine:      20,
			wantDeduction: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t, tt.policy)

			rec := model.BorrowRecord{
				ID: 7, UserID: userID, ISBN: isbn,
				DueDate: tt.dueDate, SweepPenalizedAt: tt.sweptAt,
			}
			repo.EXPECT().GetOpenRecord(ctx, userID, isbn).Return(rec, nil)
			repo.EXPECT().
				CloseBorrow(ctx, rec.ID, testNow, tt.wantFine, tt.wantDeduction).
				Return(model.BorrowRecord{ID: rec.ID, Fine: tt.wantFine, CreditDeduction: tt.wantDeduction},
					model.User{ID: userID, CreditScore: 100 - tt.wantDeduction}, nil)

			closed, err := svc.ReturnBook(ctx, userID, isbn)
			require.NoError(t, err)
			require.InDelta(t, tt.wantFine, closed.Fine, 1e-9)
			require.Equal(t, tt.wantDeduction, closed.CreditDeduction)
		})
	}
}

func TestService_ReturnBook_NoActiveLoan(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	repo.EXPECT().GetOpenRecord(ctx, "u-1", "isbn-1").
		Return(model.BorrowRecord{}, errs.ErrNoActiveLoan)

	_, err := svc.ReturnBook(ctx, "u-1", "isbn-1")
	require.ErrorIs(t, err, errs.ErrNoActiveLoan)
}

func TestService_RenewBook(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	due := testNow.AddDate(0, 0, 20)
	repo.EXPECT().RenewDueDate(ctx, "u-1", "isbn-1", 14).
		Return(model.BorrowRecord{ID: 3, DueDate: due}, nil)

	rec, err := svc.RenewBook(ctx, "u-1", "isbn-1")
	require.NoError(t, err)
	require.Equal(t, due, rec.DueDate)
}

func TestService_AuthenticateUser(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := model.User{ID: "u-1", Email: "reader@mail.com", PasswordHash: string(hash)}

	t.Run("by email", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})
		repo.EXPECT().GetUserByEmail(ctx, "reader@mail.com").Return(stored, nil)

		user, err := svc.AuthenticateUser(ctx, "reader@mail.com", "secret")
		require.NoError(t, err)
		require.Equal(t, "u-1", user.ID)
	})

	t.Run("by id", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})
		repo.EXPECT().GetUser(ctx, "u-1").Return(stored, nil)

		user, err := svc.AuthenticateUser(ctx, "u-1", "secret")
		require.NoError(t, err)
		require.Equal(t, "reader@mail.com", user.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})
		repo.EXPECT().GetUser(ctx, "u-1").Return(stored, nil)

		_, err := svc.AuthenticateUser(ctx, "u-1", "nope")
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})
		repo.EXPECT().GetUser(ctx, "ghost").Return(model.User{}, errs.ErrNotFound)

		_, err := svc.AuthenticateUser(ctx, "ghost", "secret")
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	})
}

func TestService_RegisterUser(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	var created model.User
	repo.EXPECT().
		CreateUser(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, u model.User) error {
			created = u
			return nil
		})

	user, err := svc.RegisterUser(ctx, model.RegisterUserRequest{
		Email:    "reader@mail.com",
		Password: "secret1",
		Name:     "Reader",
	})
	require.NoError(t, err)
	require.Equal(t, auth.RoleReader, user.Role)
	require.Equal(t, auth.RoleReader, created.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret1")))
}

func TestService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("empty seed is a no-op", func(t *testing.T) {
		svc, _ := newTestService(t, Policy{})
		require.NoError(t, svc.EnsureAdmin(ctx, AdminSeed{}))
	})

	t.Run("provisions the admin role", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})

		var created model.User
		repo.EXPECT().
			CreateUser(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, u model.User) error {
				created = u
				return nil
			})

		require.NoError(t, svc.EnsureAdmin(ctx, AdminSeed{Email: "admin@mail.com", Password: "secret1", Name: "admin"}))
		require.Equal(t, auth.RoleAdmin, created.Role)
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret1")))
	})

	t.Run("already seeded", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})

		repo.EXPECT().CreateUser(ctx, gomock.Any()).Return(errs.ErrDuplicateKey)

		require.NoError(t, svc.EnsureAdmin(ctx, AdminSeed{Email: "admin@mail.com", Password: "secret1"}))
	})
}

func TestService_AddReadingHours(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	repo.EXPECT().
		UpdateUser(ctx, "u-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, apply func(*model.User) error) (model.User, error) {
			u := model.User{ID: "u-1", Tier: model.TierNormal, ReadingHours: 150, CreditScore: 100}
			require.NoError(t, apply(&u))
			return u, nil
		})

	user, err := svc.AddReadingHours(ctx, "u-1", 60)
	require.NoError(t, err)
	require.Equal(t, model.TierSuper, user.Tier)
	require.Equal(t, 120, user.CreditScore)
}

func TestService_AddReadingHours_Invalid(t *testing.T) {
	svc, _ := newTestService(t, Policy{})
	_, err := svc.AddReadingHours(context.Background(), "u-1", -1)
	require.Error(t, err)
}

func TestService_PayFines(t *testing.T) {
	ctx := context.Background()

	t.Run("plain payment", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})
		repo.EXPECT().
			UpdateUser(ctx, "u-1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, apply func(*model.User) error) (model.User, error) {
				u := model.User{ID: "u-1", Fines: 10, CreditScore: 80}
				require.NoError(t, apply(&u))
				return u, nil
			})

		user, err := svc.PayFines(ctx, "u-1", 4, false)
		require.NoError(t, err)
		require.InDelta(t, 6, user.Fines, 1e-9)
		require.Equal(t, 80, user.CreditScore)
	})

	t.Run("payment with credit restoration", func(t *testing.T) {
		svc, repo := newTestService(t, Policy{})
		repo.EXPECT().
			UpdateUser(ctx, "u-1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, apply func(*model.User) error) (model.User, error) {
				u := model.User{ID: "u-1", Fines: 10, CreditScore: 80}
				require.NoError(t, apply(&u))
				return u, nil
			})

		user, err := svc.PayFines(ctx, "u-1", 4, true)
		require.NoError(t, err)
		require.InDelta(t, 6, user.Fines, 1e-9)
		require.Equal(t, 84, user.CreditScore)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		svc, _ := newTestService(t, Policy{})
		_, err := svc.PayFines(ctx, "u-1", 0, false)
		require.Error(t, err)
	})
}

func TestService_UpdateCreditScore_OutOfRange(t *testing.T) {
	svc, _ := newTestService(t, Policy{})
	_, err := svc.UpdateCreditScore(context.Background(), "u-1", 151)
	require.Error(t, err)
	_, err = svc.UpdateCreditScore(context.Background(), "u-1", -1)
	require.Error(t, err)
}

func TestService_CheckOverdueBooks(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	cutoff := testNow.AddDate(0, 0, -30)
	candidates := []model.BorrowRecord{
		{ID: 1, UserID: "u-1", ISBN: "isbn-1"},
		{ID: 2, UserID: "u-2", ISBN: "isbn-2"},
	}
	repo.EXPECT().ListSweepCandidates(ctx, cutoff).Return(candidates, nil)
	repo.EXPECT().ApplySweepPenalty(ctx, 1, 5, testNow).
		Return(model.User{ID: "u-1", CreditScore: 95}, nil)
	// record closed between scan and penalty, skipped without failing the pass
	repo.EXPECT().ApplySweepPenalty(ctx, 2, 5, testNow).
		Return(model.User{}, errs.ErrNotFound)

	require.NoError(t, svc.CheckOverdueBooks(ctx))
}

func TestService_TopRatedBooks_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	repo.EXPECT().TopRatedBooks(ctx, 10).Return([]model.Book{{ISBN: "isbn-1"}}, nil)

	books, err := svc.TopRatedBooks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, books, 1)
}

func TestService_AverageRating(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, Policy{})

	repo.EXPECT().AverageRating(ctx, "isbn-1").Return(4.5, nil)

	avg, err := svc.AverageRating(ctx, "isbn-1")
	require.NoError(t, err)
	require.InDelta(t, 4.5, avg, 1e-9)
}

func TestDaysOverdue(t *testing.T) {
	tests := []struct {
		name     string
		due      time.Time
		returned time.Time
		want     int
	}{
		{"same day", testNow, testNow, 0},
		{"early", testNow, testNow.AddDate(0, 0, -2), -2},
		{"late ignores time of day", testNow.Add(-2 * time.Hour), testNow.AddDate(0, 0, 3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, daysOverdue(tt.due, tt.returned))
		})
	}
}
