package model

import "time"

type Book struct {
	ISBN            string     `json:"isbn" db:"isbn"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	Publisher       string     `json:"publisher" db:"publisher"`
	PublishDate     *time.Time `json:"publishDate,omitempty" db:"publish_date"`
	Price           float64    `json:"price" db:"price"`
	Introduction    string     `json:"introduction" db:"introduction"`
	TotalCopies     int        `json:"totalCopies" db:"total_copies"`
	AvailableCopies int        `json:"availableCopies" db:"available_copies"`
	AverageRating   float64    `json:"averageRating" db:"average_rating"`
}

// Borrow takes one copy; fails when none are available.
func (b *Book) Borrow() bool {
	if b.AvailableCopies <= 0 {
		return false
	}
	b.AvailableCopies--
	return true
}

// Return puts one copy back; fails when all copies are already in.
func (b *Book) Return() bool {
	if b.AvailableCopies >= b.TotalCopies {
		return false
	}
	b.AvailableCopies++
	return true
}
