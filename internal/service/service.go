package service

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/backup"
	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
	"github.com/myarnwas/Library-Management-System-LMS/internal/repository"
)

// Service is the circulation engine. It is the only component that
// mutates book status, loan rows, or settings, and every mutating
// operation runs as one serializable store transaction.
type Service struct {
	log      *zap.Logger
	repo     repository.Repository
	producer sarama.SyncProducer
	exporter *backup.Exporter
	now      func() time.Time
}

func NewService(repo repository.Repository, producer sarama.SyncProducer, exporter *backup.Exporter, log *zap.Logger) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		producer: producer,
		exporter: exporter,
		now:      time.Now,
	}
}

func (s *Service) GetBook(ctx context.Context, id int) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) SearchBooks(ctx context.Context, text string) ([]model.Book, error) {
	return s.repo.SearchBooks(ctx, text)
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx)
}

func (s *Service) ListAvailableBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListAvailableBooks(ctx)
}

func (s *Service) CreateBook(ctx context.Context, req model.BookRequest) (model.Book, error) {
	return s.repo.CreateBook(ctx, req)
}

func (s *Service) UpdateBook(ctx context.Context, id int, req model.BookRequest) (model.Book, error) {
	return s.repo.UpdateBook(ctx, id, req)
}

func (s *Service) DeleteBook(ctx context.Context, id int) error {
	return s.repo.DeleteBook(ctx, id)
}

func (s *Service) GetUser(ctx context.Context, id int) (model.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, req model.UserRequest) (model.User, error) {
	return s.repo.CreateUser(ctx, req)
}

func (s *Service) UpdateUser(ctx context.Context, id int, req model.UserRequest) (model.User, error) {
	return s.repo.UpdateUser(ctx, id, req)
}

func (s *Service) DeleteUser(ctx context.Context, id int) error {
	return s.repo.DeleteUser(ctx, id)
}

func (s *Service) SetRole(ctx context.Context, id int, role model.Role) (model.User, error) {
	return s.repo.SetRole(ctx, id, role)
}

func (s *Service) ListOpenLoans(ctx context.Context) ([]model.LoanRow, error) {
	return s.repo.ListOpenLoans(ctx)
}

func (s *Service) ListLoans(ctx context.Context) ([]model.LoanRow, error) {
	return s.repo.ListLoans(ctx)
}

func (s *Service) ListFines(ctx context.Context) ([]model.LoanRow, error) {
	return s.repo.ListFines(ctx)
}

func (s *Service) ListReservations(ctx context.Context) ([]model.ReservationRow, error) {
	return s.repo.ListReservations(ctx)
}

func (s *Service) Report(ctx context.Context) (model.Report, error) {
	return s.repo.Report(ctx)
}

// Settings returns the stored configuration merged over the engine
// defaults; unknown keys are preserved as stored.
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	values := map[string]string{
		model.SettingBorrowDays: "14",
		model.SettingMaxBorrow:  "5",
		model.SettingFinePerDay: "1",
	}
	stored, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range stored {
		values[st.Key] = st.Value
	}
	return values, nil
}

func (s *Service) Backup(ctx context.Context) (model.BackupResult, error) {
	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return model.BackupResult{}, err
	}
	return s.exporter.Export(ctx, snap)
}
