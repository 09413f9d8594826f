package handler

import (
	"context"

	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
	"github.com/myarnwas/Library-Management-System-LMS/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

// CirculationService is the engine surface the HTTP layer consumes.
type CirculationService interface {
	Borrow(ctx context.Context, userID, bookID int) (model.Loan, error)
	Return(ctx context.Context, loanID int) (model.Loan, error)
	SettleFine(ctx context.Context, loanID int) error
	Reserve(ctx context.Context, userID, bookID int) (model.Reservation, error)
	ResolveReservation(ctx context.Context, reservationID int, outcome model.ReservationStatus) (model.Reservation, error)

	ListOpenLoans(ctx context.Context) ([]model.LoanRow, error)
	ListLoans(ctx context.Context) ([]model.LoanRow, error)
	ListFines(ctx context.Context) ([]model.LoanRow, error)
	ListReservations(ctx context.Context) ([]model.ReservationRow, error)

	GetBook(ctx context.Context, id int) (model.Book, error)
	SearchBooks(ctx context.Context, text string) ([]model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	ListAvailableBooks(ctx context.Context) ([]model.Book, error)
	CreateBook(ctx context.Context, req model.BookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, id int, req model.BookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id int) error

	GetUser(ctx context.Context, id int) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, req model.UserRequest) (model.User, error)
	UpdateUser(ctx context.Context, id int, req model.UserRequest) (model.User, error)
	DeleteUser(ctx context.Context, id int) error
	SetRole(ctx context.Context, id int, role model.Role) (model.User, error)

	Settings(ctx context.Context) (map[string]string, error)
	UpdateSettings(ctx context.Context, values map[string]string) error
	Report(ctx context.Context) (model.Report, error)
	Backup(ctx context.Context) (model.BackupResult, error)
}

var _ CirculationService = (*service.Service)(nil)
