package service

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/errs"
	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
	"github.com/myarnwas/Library-Management-System-LMS/internal/repository"
	"github.com/myarnwas/Library-Management-System-LMS/pkg/kafka"
)

const (
	eventBorrowed    = "book_borrowed"
	eventReturned    = "book_returned"
	eventReserved    = "book_reserved"
	eventFineSettled = "fine_settled"
)

// Borrow creates an open loan for the user and flips the book to
// borrowed. The limit and availability checks commit atomically with
// the writes; a concurrent winner leaves the loser with ErrNotAvailable.
func (s *Service) Borrow(ctx context.Context, userID, bookID int) (model.Loan, error) {
	var loan model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		cfg, err := s.circulationConfig(ctx, tx)
		if err != nil {
			return err
		}
		open, err := tx.OpenLoanCount(ctx, userID)
		if err != nil {
			return err
		}
		if open >= cfg.MaxBorrow {
			return errors.WithMessagef(errs.ErrLimitExceeded, "limit %d", cfg.MaxBorrow)
		}
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book.Status != model.BookAvailable {
			return errs.ErrNotAvailable
		}
		borrowDate := model.NewDate(s.now())
		dueDate := model.NewDate(borrowDate.AddDate(0, 0, cfg.BorrowDays))
		if loan, err = tx.CreateLoan(ctx, userID, bookID, borrowDate, dueDate); err != nil {
			return err
		}
		return tx.SetBookStatus(ctx, bookID, model.BookBorrowed)
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.publish(eventBorrowed, loan)
	return loan, nil
}

// Return closes the loan, computing the fine from the rate in effect at
// return time, and flips the book back to available.
func (s *Service) Return(ctx context.Context, loanID int) (model.Loan, error) {
	var loan model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if !cur.Open() {
			return errs.ErrAlreadyReturned
		}
		cfg, err := s.circulationConfig(ctx, tx)
		if err != nil {
			return err
		}
		returnDate := model.NewDate(s.now())
		late := cur.DueDate.DaysUntil(returnDate)
		if late < 0 {
			late = 0
		}
		fine := float64(late) * cfg.FinePerDay
		if loan, err = tx.CloseLoan(ctx, loanID, returnDate, fine); err != nil {
			return err
		}
		return tx.SetBookStatus(ctx, loan.BookID, model.BookAvailable)
	})
	if err != nil {
		return model.Loan{}, err
	}
	s.publish(eventReturned, loan)
	return loan, nil
}

// Reserve records a pending reservation. Availability is deliberately
// not checked: reserving ahead on an available book is permitted.
func (s *Service) Reserve(ctx context.Context, userID, bookID int) (model.Reservation, error) {
	var rsv model.Reservation
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		rsv, err = tx.CreateReservation(ctx, userID, bookID, model.NewDate(s.now()))
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.publish(eventReserved, rsv)
	return rsv, nil
}

// ResolveReservation flips a pending reservation to a terminal status.
// There is no automatic linkage to loan creation; completion is a
// manual librarian action.
func (s *Service) ResolveReservation(ctx context.Context, reservationID int, outcome model.ReservationStatus) (model.Reservation, error) {
	if outcome != model.ReservationCompleted && outcome != model.ReservationCanceled {
		return model.Reservation{}, errors.Errorf("invalid outcome %q", outcome)
	}
	var rsv model.Reservation
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if cur.Status != model.ReservationPending {
			return errs.ErrAlreadyResolved
		}
		if err := tx.SetReservationStatus(ctx, reservationID, outcome); err != nil {
			return err
		}
		cur.Status = outcome
		rsv = cur
		return nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return rsv, nil
}

// SettleFine marks the loan's fine paid. Settling twice is a no-op.
func (s *Service) SettleFine(ctx context.Context, loanID int) error {
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetLoan(ctx, loanID); err != nil {
			return err
		}
		return tx.SettleFine(ctx, loanID)
	})
	if err != nil {
		return err
	}
	s.publish(eventFineSettled, map[string]int{"loanId": loanID})
	return nil
}

// UpdateSettings validates every value against its key's semantic type
// and applies the whole batch in one transaction, or none of it.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) error {
	for key, value := range values {
		if err := validateSetting(key, value); err != nil {
			return err
		}
	}
	return s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		for key, value := range values {
			if err := tx.UpsertSetting(ctx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func validateSetting(key, value string) error {
	switch key {
	case model.SettingBorrowDays, model.SettingMaxBorrow:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return errors.WithMessagef(errs.ErrInvalidSetting, "%s=%q: want positive integer", key, value)
		}
	case model.SettingFinePerDay:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return errors.WithMessagef(errs.ErrInvalidSetting, "%s=%q: want non-negative number", key, value)
		}
	}
	// unknown keys are preserved but unused by the engine
	return nil
}

// circulationConfig resolves the settings snapshot the operation runs
// against. Unset or unparseable values fall back to the defaults.
func (s *Service) circulationConfig(ctx context.Context, tx repository.Tx) (model.CirculationConfig, error) {
	cfg := model.DefaultCirculationConfig()

	read := func(key string) (string, bool, error) {
		v, err := tx.Setting(ctx, key)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return "", false, nil
			}
			return "", false, err
		}
		return v, true, nil
	}

	if v, ok, err := read(model.SettingBorrowDays); err != nil {
		return cfg, err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			cfg.BorrowDays = n
		}
	}
	if v, ok, err := read(model.SettingMaxBorrow); err != nil {
		return cfg, err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			cfg.MaxBorrow = n
		}
	}
	if v, ok, err := read(model.SettingFinePerDay); err != nil {
		return cfg, err
	} else if ok {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil && f >= 0 {
			cfg.FinePerDay = f
		}
	}
	return cfg, nil
}

type event struct {
	Kind    string      `json:"kind"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// publish emits a circulation event when a producer is configured.
// Failures are logged, never surfaced: events are advisory.
func (s *Service) publish(kind string, payload interface{}) {
	if s.producer == nil {
		return
	}
	b, err := jsoniter.ConfigFastest.Marshal(event{
		Kind:    kind,
		At:      time.Now().UTC(),
		Payload: payload,
	})
	if err != nil {
		s.log.Warn("event marshal", zap.String("kind", kind), zap.Error(err))
		return
	}
	if _, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: kafka.CirculationTopic,
		Value: sarama.ByteEncoder(b),
	}); err != nil {
		s.log.Warn("event publish", zap.String("kind", kind), zap.Error(err))
	}
}
