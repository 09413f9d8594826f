package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type Role string

const (
	RoleStudent   Role = "Student"
	RoleLibrarian Role = "Librarian"
	RoleAdmin     Role = "Admin"
)

type BookStatus string

const (
	BookAvailable BookStatus = "available"
	BookBorrowed  BookStatus = "borrowed"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCanceled  ReservationStatus = "canceled"
)

// Date is a calendar date without time-of-day, stored as a DATE column
// and rendered as YYYY-MM-DD on the wire.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	t, err := time.Parse(`"`+time.DateOnly+`"`, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
	case string:
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return err
		}
		d.Time = t
	case nil:
		*d = Date{}
	default:
		return fmt.Errorf("unsupported date source %T", src)
	}
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

// DaysUntil returns the number of whole calendar days from d to other.
// Negative when other precedes d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time) / (24 * time.Hour))
}

type User struct {
	ID       int    `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Role     Role   `json:"role" db:"role"`
	Email    string `json:"email" db:"email"`
	Password string `json:"-" db:"password"`
}

type Book struct {
	ID       int        `json:"id" db:"id"`
	Title    string     `json:"title" db:"title"`
	Author   string     `json:"author" db:"author"`
	Category string     `json:"category" db:"category"`
	Year     int        `json:"year" db:"year"`
	Status   BookStatus `json:"status" db:"status"`
}

type Loan struct {
	ID          int     `json:"id" db:"id"`
	UserID      int     `json:"userId" db:"user_id"`
	BookID      int     `json:"bookId" db:"book_id"`
	BorrowDate  Date    `json:"borrowDate" db:"borrow_date"`
	DueDate     Date    `json:"dueDate" db:"due_date"`
	ReturnDate  *Date   `json:"returnDate" db:"return_date"`
	Fine        float64 `json:"fine" db:"fine"`
	FineSettled bool    `json:"fineSettled" db:"fine_settled"`
}

// Open reports whether the loan has not been returned yet.
func (l Loan) Open() bool {
	return l.ReturnDate == nil
}

type Reservation struct {
	ID              int               `json:"id" db:"id"`
	UserID          int               `json:"userId" db:"user_id"`
	BookID          int               `json:"bookId" db:"book_id"`
	ReservationDate Date              `json:"reservationDate" db:"reservation_date"`
	Status          ReservationStatus `json:"status" db:"status"`
}

type Setting struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}

// LoanRow is the tabular projection of a loan joined with the borrower
// name and book title, for listing screens.
type LoanRow struct {
	ID          int     `json:"id" db:"id"`
	UserName    string  `json:"userName" db:"user_name"`
	BookTitle   string  `json:"bookTitle" db:"book_title"`
	BorrowDate  Date    `json:"borrowDate" db:"borrow_date"`
	DueDate     Date    `json:"dueDate" db:"due_date"`
	ReturnDate  *Date   `json:"returnDate" db:"return_date"`
	Fine        float64 `json:"fine" db:"fine"`
	FineSettled bool    `json:"fineSettled" db:"fine_settled"`
}

type ReservationRow struct {
	ID              int               `json:"id" db:"id"`
	UserName        string            `json:"userName" db:"user_name"`
	BookTitle       string            `json:"bookTitle" db:"book_title"`
	ReservationDate Date              `json:"reservationDate" db:"reservation_date"`
	Status          ReservationStatus `json:"status" db:"status"`
}

// Report carries the dashboard totals.
type Report struct {
	TotalBooks     int     `json:"totalBooks" db:"total_books"`
	BorrowedNow    int     `json:"borrowedNow" db:"borrowed_now"`
	TotalUsers     int     `json:"totalUsers" db:"total_users"`
	UnsettledFines float64 `json:"unsettledFines" db:"unsettled_fines"`
}

// Snapshot is the full persisted state, used by the backup exporter.
type Snapshot struct {
	CreatedAt    time.Time     `json:"createdAt"`
	Users        []User        `json:"users"`
	Books        []Book        `json:"books"`
	Loans        []Loan        `json:"loans"`
	Reservations []Reservation `json:"reservations"`
	Settings     []Setting     `json:"settings"`
}

const (
	SettingBorrowDays = "borrow_days"
	SettingMaxBorrow  = "max_borrow"
	SettingFinePerDay = "fine_per_day"
)

// CirculationConfig is the settings snapshot an engine operation runs
// against. It is resolved once per operation, inside its transaction.
type CirculationConfig struct {
	BorrowDays int
	MaxBorrow  int
	FinePerDay float64
}

func DefaultCirculationConfig() CirculationConfig {
	return CirculationConfig{
		BorrowDays: 14,
		MaxBorrow:  5,
		FinePerDay: 1.0,
	}
}
