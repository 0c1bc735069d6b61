package model

const (
	minBorrowCredit = 90

	creditScoreMin = 0
	creditScoreMax = 150

	normalInitialCredit = 100
	superInitialCredit  = 120

	normalMaxBorrow  = 5
	normalBorrowDays = 14
	superMaxBorrow   = 8
	superBorrowDays  = 28

	// cumulative reading hours needed for the Normal -> Super upgrade
	upgradeReadingHours = 200.0
)

type User struct {
	ID           string  `json:"id" db:"id"`
	Email        string  `json:"email" db:"email"`
	PasswordHash string  `json:"-" db:"password_hash"`
	Name         string  `json:"name" db:"name"`
	Role         string  `json:"role" db:"role"`
	Tier         Tier    `json:"tier" db:"tier"`
	ReadingHours float64 `json:"readingHours" db:"reading_hours"`
	Fines        float64 `json:"fines" db:"fines"`
	CreditScore  int     `json:"creditScore" db:"credit_score"`
	HadLowCredit bool    `json:"hadLowCredit" db:"had_low_credit"`
}

// NewUser returns a freshly registered Normal-tier user with the given
// access role.
func NewUser(id, email, passwordHash, name, role string) User {
	return User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		Tier:         TierNormal,
		CreditScore:  normalInitialCredit,
	}
}

func (u User) MaxBorrowCount() int {
	if u.Tier == TierSuper {
		return superMaxBorrow
	}
	return normalMaxBorrow
}

func (u User) BorrowDays() int {
	if u.Tier == TierSuper {
		return superBorrowDays
	}
	return normalBorrowDays
}

func (u User) CanBorrow() bool {
	return u.CreditScore >= minBorrowCredit
}

// CanUpgrade is revoked permanently once the credit score has ever
// dropped below the borrow threshold.
func (u User) CanUpgrade() bool {
	return !u.HadLowCredit
}

// UpgradeToSuper promotes a Normal reader that has read enough and never
// had low credit. The credit score is reset to the Super initial value,
// not raised additively. Returns false without mutation otherwise.
func (u *User) UpgradeToSuper() bool {
	if u.Tier != TierNormal || u.ReadingHours < upgradeReadingHours || !u.CanUpgrade() {
		return false
	}
	u.Tier = TierSuper
	u.CreditScore = superInitialCredit
	return true
}

// AddReadingHours accumulates hours and attempts the automatic upgrade
// when the threshold is crossed. Reports whether an upgrade happened.
func (u *User) AddReadingHours(hours float64) bool {
	if hours < 0 {
		return false
	}
	u.ReadingHours += hours
	if u.Tier == TierNormal && u.ReadingHours >= upgradeReadingHours {
		return u.UpgradeToSuper()
	}
	return false
}

func (u *User) AddFine(amount float64) {
	if amount < 0 {
		return
	}
	u.Fines += amount
}

// PayFine reduces the balance, capping the payment at what is owed.
func (u *User) PayFine(amount float64) {
	if amount < 0 {
		return
	}
	if amount > u.Fines {
		amount = u.Fines
	}
	u.Fines -= amount
}

// SetCreditScore clamps to [0,150]. The first drop below the borrow
// threshold latches HadLowCredit; no later increase unsets it.
func (u *User) SetCreditScore(score int) {
	if score < creditScoreMin {
		score = creditScoreMin
	}
	if score > creditScoreMax {
		score = creditScoreMax
	}
	u.CreditScore = score
	if u.CreditScore < minBorrowCredit {
		u.HadLowCredit = true
	}
}

func (u *User) AddCreditScore(points int) {
	u.SetCreditScore(u.CreditScore + points)
}

func (u *User) DeductCreditScore(points int) {
	u.SetCreditScore(u.CreditScore - points)
}

// PayFineWithCredit converts a payment into fine reduction and credit
// restoration at one point per currency unit.
func (u *User) PayFineWithCredit(amount float64) {
	if amount <= 0 {
		return
	}
	u.PayFine(amount)
	u.AddCreditScore(int(amount))
}
