package model

import "time"

type Tier string

const (
	TierNormal Tier = "NORMAL"
	TierSuper  Tier = "SUPER"
)

type CopyStatus string

const (
	CopyAvailable CopyStatus = "AVAILABLE"
	CopyBorrowed  CopyStatus = "BORROWED"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

type BookCopy struct {
	CopyID string     `json:"copyId" db:"copy_id"`
	ISBN   string     `json:"isbn" db:"isbn"`
	Status CopyStatus `json:"status" db:"status"`
}

type BorrowRecord struct {
	ID               int        `json:"id" db:"id"`
	UserID           string     `json:"userId" db:"user_id"`
	ISBN             string     `json:"isbn" db:"isbn"`
	BorrowDate       time.Time  `json:"borrowDate" db:"borrow_date"`
	DueDate          time.Time  `json:"dueDate" db:"due_date"`
	ReturnDate       *time.Time `json:"returnDate,omitempty" db:"return_date"`
	Fine             float64    `json:"fine" db:"fine"`
	CreditDeduction  int        `json:"creditDeduction" db:"credit_deduction"`
	SweepPenalizedAt *time.Time `json:"sweepPenalizedAt,omitempty" db:"sweep_penalized_at"`
}

// Open reports whether the loan is still outstanding.
func (r BorrowRecord) Open() bool {
	return r.ReturnDate == nil
}

type Reservation struct {
	ReservationUid string            `json:"reservationUid" db:"reservation_uid"`
	UserID         string            `json:"userId" db:"user_id"`
	ISBN           string            `json:"isbn" db:"isbn"`
	Status         ReservationStatus `json:"status" db:"status"`
	ReserveDate    time.Time         `json:"reserveDate" db:"reserve_date"`
}

type Comment struct {
	ID        int       `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	ISBN      string    `json:"isbn" db:"isbn"`
	Content   string    `json:"content" db:"content"`
	Rating    int       `json:"rating" db:"rating"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

type ListUsers struct {
	Paging `json:",inline"`
	Items  []User `json:"items"`
}

type RegisterUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
}

type AuthRequest struct {
	// Identifier is an email or a user id, matching the desktop login form.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type AddBookRequest struct {
	ISBN         string  `json:"isbn" validate:"required"`
	Title        string  `json:"title" validate:"required"`
	Author       string  `json:"author" validate:"required"`
	Copies       int     `json:"copies" validate:"required,gt=0"`
	Publisher    string  `json:"publisher"`
	PublishDate  string  `json:"publishDate"`
	Price        float64 `json:"price" validate:"gte=0"`
	Introduction string  `json:"introduction"`
}

type AddCommentRequest struct {
	ISBN    string `json:"isbn" validate:"required"`
	Content string `json:"content" validate:"required"`
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
}

type PayFinesRequest struct {
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	WithCredit bool    `json:"withCredit"`
}

type UpdateCreditScoreRequest struct {
	Score int `json:"score" validate:"gte=0,lte=150"`
}

type AddReadingHoursRequest struct {
	Hours float64 `json:"hours" validate:"required,gt=0"`
}
