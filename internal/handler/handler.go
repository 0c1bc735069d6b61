package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/lending-service/internal/errs"
	"github.com/openshelf/lending-service/internal/model"
	"github.com/openshelf/lending-service/pkg/auth"
	md "github.com/openshelf/lending-service/pkg/middleware"
	"github.com/openshelf/lending-service/pkg/validate"
)

type Handler struct {
	lendingSvc LendingService
	log        *zap.Logger
}

func New(lendingSvc LendingService, log *zap.Logger) *Handler {
	return &Handler{
		lendingSvc: lendingSvc,
		log:        log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/register", h.Register)
	api.POST("/authorize", h.Authorize)

	api.GET("/books", h.SearchBooks)
	api.GET("/books/top", h.TopRatedBooks)
	api.GET("/books/:isbn", h.GetBook)
	api.GET("/books/:isbn/comments", h.CommentsForBook)

	user := api.Group("", md.JwtAuthentication)
	user.POST("/loans/:isbn", h.Borrow)
	user.DELETE("/loans/:isbn", h.Return)
	user.PATCH("/loans/:isbn/renew", h.Renew)
	user.GET("/loans", h.BorrowedBooks)
	user.POST("/reservations/:isbn", h.Reserve)
	user.DELETE("/reservations/:isbn", h.CancelReservation)
	user.POST("/comments", h.AddComment)
	user.GET("/me", h.Me)
	user.GET("/me/fines", h.GetFines)
	user.POST("/me/fines/pay", h.PayFines)
	user.POST("/me/reading-hours", h.AddReadingHours)

	admin := user.Group("", md.AdminOnly)
	admin.POST("/books", h.AddBook)
	admin.DELETE("/books/:isbn", h.RemoveBook)
	admin.GET("/users", h.ListUsers)
	admin.DELETE("/users/:id", h.DeleteUser)
	admin.PATCH("/users/:id/credit", h.UpdateCreditScore)
	admin.GET("/records", h.BorrowRecords)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps the error taxonomy onto status codes; anything
// unrecognized is a persistence failure.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrNoActiveLoan):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, errs.ErrCreditTooLow):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrBorrowLimit),
		errors.Is(err, errs.ErrNoCopyAvailable),
		errors.Is(err, errs.ErrHasDependents),
		errors.Is(err, errs.ErrDuplicateKey):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func userIDFromCtx(c echo.Context) (string, error) {
	userID, _, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no auth context")
	}
	return userID, nil
}

// --- auth ---

func (h *Handler) Register(c echo.Context) error {
	var req model.RegisterUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.lendingSvc.RegisterUser(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) Authorize(c echo.Context) error {
	var req model.AuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.lendingSvc.AuthenticateUser(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		return httpError(err)
	}

	claims := &auth.Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	claims.Profile.UserID = user.ID
	claims.Profile.Role = user.Role

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(auth.JWTKey)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, model.AuthResponse{Token: tokenString, User: user})
}

// --- catalog ---

func (h *Handler) SearchBooks(c echo.Context) error {
	keyword := c.QueryParam("q")
	page, size, err := paging(c)
	if err != nil {
		return err
	}
	books, err := h.lendingSvc.SearchBooks(c.Request().Context(), keyword, page, size)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) TopRatedBooks(c echo.Context) error {
	limit := 10
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		var err error
		if limit, err = strconv.Atoi(limitParam); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("limit is invalid"))
		}
	}
	books, err := h.lendingSvc.TopRatedBooks(c.Request().Context(), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	book, err := h.lendingSvc.GetBook(c.Request().Context(), c.Param("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) AddBook(c echo.Context) error {
	var req model.AddBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	book, err := h.lendingSvc.AddBook(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) RemoveBook(c echo.Context) error {
	if err := h.lendingSvc.RemoveBook(c.Request().Context(), c.Param("isbn")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- lending ---

func (h *Handler) Borrow(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	rec, err := h.lendingSvc.BorrowBook(c.Request().Context(), userID, c.Param("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Return(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	rec, err := h.lendingSvc.ReturnBook(c.Request().Context(), userID, c.Param("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Renew(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	rec, err := h.lendingSvc.RenewBook(c.Request().Context(), userID, c.Param("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) BorrowedBooks(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	books, err := h.lendingSvc.BooksBorrowedByUser(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

// --- reservations ---

func (h *Handler) Reserve(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	res, err := h.lendingSvc.ReserveBook(c.Request().Context(), userID, c.Param("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) CancelReservation(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	if err := h.lendingSvc.CancelReservation(c.Request().Context(), userID, c.Param("isbn")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- comments ---

func (h *Handler) AddComment(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	var req model.AddCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	comment, err := h.lendingSvc.AddComment(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, comment)
}

func (h *Handler) CommentsForBook(c echo.Context) error {
	comments, err := h.lendingSvc.CommentsForBook(c.Request().Context(), c.Param("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, comments)
}

// --- profile / fines ---

func (h *Handler) Me(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	user, err := h.lendingSvc.GetUser(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) GetFines(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	fines, err := h.lendingSvc.GetUserFines(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]float64{"fines": fines})
}

func (h *Handler) PayFines(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	var req model.PayFinesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.lendingSvc.PayFines(c.Request().Context(), userID, req.Amount, req.WithCredit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) AddReadingHours(c echo.Context) error {
	userID, err := userIDFromCtx(c)
	if err != nil {
		return err
	}
	var req model.AddReadingHoursRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.lendingSvc.AddReadingHours(c.Request().Context(), userID, req.Hours)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// --- admin ---

func (h *Handler) ListUsers(c echo.Context) error {
	page, size, err := paging(c)
	if err != nil {
		return err
	}
	users, err := h.lendingSvc.ListUsers(c.Request().Context(), page, size)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.lendingSvc.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateCreditScore(c echo.Context) error {
	var req model.UpdateCreditScoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	user, err := h.lendingSvc.UpdateCreditScore(c.Request().Context(), c.Param("id"), req.Score)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) BorrowRecords(c echo.Context) error {
	records, err := h.lendingSvc.BorrowRecords(c.Request().Context(), c.QueryParam("isbn"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func paging(c echo.Context) (page, size int, err error) {
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if page, err = strconv.Atoi(pageParam); err != nil {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, errors.New("page is invalid"))
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if size, err = strconv.Atoi(sizeParam); err != nil {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, errors.New("size is invalid"))
		}
	}
	return page, size, nil
}
