package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/errs"
	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
	"github.com/myarnwas/Library-Management-System-LMS/internal/repository"
)

// memStore is an in-memory Tx used to exercise the engine rules without
// a database; transactional conflict behavior is the store's concern and
// is not simulated here.
type memStore struct {
	users        map[int]model.User
	books        map[int]model.Book
	loans        map[int]model.Loan
	reservations map[int]model.Reservation
	settings     map[string]string
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int]model.User),
		books:        make(map[int]model.Book),
		loans:        make(map[int]model.Loan),
		reservations: make(map[int]model.Reservation),
		settings:     make(map[string]string),
		nextID:       1,
	}
}

func (m *memStore) GetBook(_ context.Context, id int) (model.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return book, nil
}

func (m *memStore) SetBookStatus(_ context.Context, id int, status model.BookStatus) error {
	book, ok := m.books[id]
	if !ok {
		return errs.ErrNotFound
	}
	book.Status = status
	m.books[id] = book
	return nil
}

func (m *memStore) OpenLoanCount(_ context.Context, userID int) (int, error) {
	count := 0
	for _, l := range m.loans {
		if l.UserID == userID && l.Open() {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetLoan(_ context.Context, id int) (model.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return model.Loan{}, errs.ErrNotFound
	}
	return loan, nil
}

func (m *memStore) CreateLoan(_ context.Context, userID, bookID int, borrowDate, dueDate model.Date) (model.Loan, error) {
	loan := model.Loan{
		ID:         m.nextID,
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
	}
	m.nextID++
	m.loans[loan.ID] = loan
	return loan, nil
}

func (m *memStore) CloseLoan(_ context.Context, id int, returnDate model.Date, fine float64) (model.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return model.Loan{}, errs.ErrNotFound
	}
	loan.ReturnDate = &returnDate
	loan.Fine = fine
	m.loans[id] = loan
	return loan, nil
}

func (m *memStore) SettleFine(_ context.Context, id int) error {
	loan, ok := m.loans[id]
	if !ok {
		return errs.ErrNotFound
	}
	loan.FineSettled = true
	m.loans[id] = loan
	return nil
}

func (m *memStore) GetReservation(_ context.Context, id int) (model.Reservation, error) {
	rsv, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	return rsv, nil
}

func (m *memStore) CreateReservation(_ context.Context, userID, bookID int, date model.Date) (model.Reservation, error) {
	if _, ok := m.users[userID]; !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	if _, ok := m.books[bookID]; !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	rsv := model.Reservation{
		ID:              m.nextID,
		UserID:          userID,
		BookID:          bookID,
		ReservationDate: date,
		Status:          model.ReservationPending,
	}
	m.nextID++
	m.reservations[rsv.ID] = rsv
	return rsv, nil
}

func (m *memStore) SetReservationStatus(_ context.Context, id int, status model.ReservationStatus) error {
	rsv, ok := m.reservations[id]
	if !ok {
		return errs.ErrNotFound
	}
	rsv.Status = status
	m.reservations[id] = rsv
	return nil
}

func (m *memStore) Setting(_ context.Context, key string) (string, error) {
	value, ok := m.settings[key]
	if !ok {
		return "", errs.ErrNotFound
	}
	return value, nil
}

func (m *memStore) UpsertSetting(_ context.Context, key, value string) error {
	m.settings[key] = value
	return nil
}

type fakeRepo struct {
	repository.Repository
	store *memStore
}

func (f *fakeRepo) WithinTx(_ context.Context, fn func(tx repository.Tx) error) error {
	return fn(f.store)
}

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestService(store *memStore) *Service {
	svc := NewService(&fakeRepo{store: store}, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return day(0) }
	return svc
}

func seedBook(store *memStore, id int, status model.BookStatus) {
	store.books[id] = model.Book{
		ID:     id,
		Title:  "The Go Programming Language",
		Author: "Donovan",
		Status: status,
	}
}

func seedUser(store *memStore, id int) {
	store.users[id] = model.User{ID: id, Name: "student", Role: model.RoleStudent}
}

func TestService_Borrow(t *testing.T) {
	ctx := context.Background()

	t.Run("due date from default borrow period", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)
		require.Equal(t, model.NewDate(day(0)), loan.BorrowDate)
		require.Equal(t, model.NewDate(day(14)), loan.DueDate)
		require.True(t, loan.Open())
		require.Zero(t, loan.Fine)
		require.False(t, loan.FineSettled)
		require.Equal(t, model.BookBorrowed, store.books[1].Status)
	})

	t.Run("configured borrow period wins", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		store.settings[model.SettingBorrowDays] = "7"
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)
		require.Equal(t, model.NewDate(day(7)), loan.DueDate)
	})

	t.Run("unparseable borrow period falls back to default", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		store.settings[model.SettingBorrowDays] = "soon"
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)
		require.Equal(t, model.NewDate(day(14)), loan.DueDate)
	})

	t.Run("limit exceeded leaves state untouched", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 2, model.BookAvailable)
		for i := 0; i < 5; i++ {
			seedBook(store, 10+i, model.BookBorrowed)
			store.loans[100+i] = model.Loan{ID: 100 + i, UserID: 3, BookID: 10 + i}
		}
		svc := newTestService(store)

		_, err := svc.Borrow(ctx, 3, 2)
		require.ErrorIs(t, err, errs.ErrLimitExceeded)
		require.Equal(t, model.BookAvailable, store.books[2].Status)
		require.Len(t, store.loans, 5)
	})

	t.Run("book not found", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		svc := newTestService(store)

		_, err := svc.Borrow(ctx, 3, 42)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("book not available", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookBorrowed)
		svc := newTestService(store)

		_, err := svc.Borrow(ctx, 3, 1)
		require.ErrorIs(t, err, errs.ErrNotAvailable)
		require.Empty(t, store.loans)
	})
}

func TestService_Return(t *testing.T) {
	ctx := context.Background()

	t.Run("late return accrues fine at return-time rate", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)

		// six days past due, rate changed after borrowing
		store.settings[model.SettingFinePerDay] = "2.5"
		svc.now = func() time.Time { return day(20) }

		returned, err := svc.Return(ctx, loan.ID)
		require.NoError(t, err)
		require.NotNil(t, returned.ReturnDate)
		require.Equal(t, model.NewDate(day(20)), *returned.ReturnDate)
		require.Equal(t, 15.0, returned.Fine)
		require.False(t, returned.FineSettled)
		require.Equal(t, model.BookAvailable, store.books[1].Status)
	})

	t.Run("default rate of one per day", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)

		svc.now = func() time.Time { return day(20) }
		returned, err := svc.Return(ctx, loan.ID)
		require.NoError(t, err)
		require.Equal(t, 6.0, returned.Fine)
	})

	t.Run("on-time return yields zero fine", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)

		svc.now = func() time.Time { return day(14) }
		returned, err := svc.Return(ctx, loan.ID)
		require.NoError(t, err)
		require.Zero(t, returned.Fine)
	})

	t.Run("early return yields zero fine", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)

		svc.now = func() time.Time { return day(2) }
		returned, err := svc.Return(ctx, loan.ID)
		require.NoError(t, err)
		require.Zero(t, returned.Fine)
	})

	t.Run("already returned", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		loan, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)
		_, err = svc.Return(ctx, loan.ID)
		require.NoError(t, err)

		before := store.loans[loan.ID]
		_, err = svc.Return(ctx, loan.ID)
		require.ErrorIs(t, err, errs.ErrAlreadyReturned)
		require.Equal(t, before, store.loans[loan.ID])
	})

	t.Run("loan not found", func(t *testing.T) {
		svc := newTestService(newMemStore())
		_, err := svc.Return(ctx, 99)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestService_SettleFine(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedUser(store, 3)
	seedBook(store, 1, model.BookAvailable)
	svc := newTestService(store)

	loan, err := svc.Borrow(ctx, 3, 1)
	require.NoError(t, err)
	svc.now = func() time.Time { return day(20) }
	_, err = svc.Return(ctx, loan.ID)
	require.NoError(t, err)

	require.NoError(t, svc.SettleFine(ctx, loan.ID))
	require.True(t, store.loans[loan.ID].FineSettled)

	// settling twice is a no-op, not an error
	require.NoError(t, svc.SettleFine(ctx, loan.ID))
	require.True(t, store.loans[loan.ID].FineSettled)

	require.ErrorIs(t, svc.SettleFine(ctx, 99), errs.ErrNotFound)
}

func TestService_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("available book can be reserved ahead", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		seedBook(store, 1, model.BookAvailable)
		svc := newTestService(store)

		rsv, err := svc.Reserve(ctx, 3, 1)
		require.NoError(t, err)
		require.Equal(t, model.ReservationPending, rsv.Status)
		require.Equal(t, model.NewDate(day(0)), rsv.ReservationDate)
		require.Equal(t, model.BookAvailable, store.books[1].Status)
	})

	t.Run("unknown book", func(t *testing.T) {
		store := newMemStore()
		seedUser(store, 3)
		svc := newTestService(store)

		_, err := svc.Reserve(ctx, 3, 42)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestService_ResolveReservation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedUser(store, 3)
	seedBook(store, 1, model.BookAvailable)
	svc := newTestService(store)

	rsv, err := svc.Reserve(ctx, 3, 1)
	require.NoError(t, err)

	resolved, err := svc.ResolveReservation(ctx, rsv.ID, model.ReservationCompleted)
	require.NoError(t, err)
	require.Equal(t, model.ReservationCompleted, resolved.Status)

	// terminal, in either direction
	_, err = svc.ResolveReservation(ctx, rsv.ID, model.ReservationCanceled)
	require.ErrorIs(t, err, errs.ErrAlreadyResolved)
	require.Equal(t, model.ReservationCompleted, store.reservations[rsv.ID].Status)

	_, err = svc.ResolveReservation(ctx, 99, model.ReservationCanceled)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.ResolveReservation(ctx, rsv.ID, model.ReservationPending)
	require.Error(t, err)
}

func TestService_UpdateSettings(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		values  map[string]string
		wantErr bool
	}{
		{
			name:   "valid batch",
			values: map[string]string{model.SettingBorrowDays: "21", model.SettingFinePerDay: "0.5"},
		},
		{
			name:   "unknown keys pass through",
			values: map[string]string{"theme": "dark"},
		},
		{
			name:    "unparseable days",
			values:  map[string]string{model.SettingBorrowDays: "abc"},
			wantErr: true,
		},
		{
			name:    "zero limit",
			values:  map[string]string{model.SettingMaxBorrow: "0"},
			wantErr: true,
		},
		{
			name:    "negative rate",
			values:  map[string]string{model.SettingFinePerDay: "-1"},
			wantErr: true,
		},
		{
			name: "one bad value rejects the whole batch",
			values: map[string]string{
				model.SettingBorrowDays: "10",
				model.SettingMaxBorrow:  "x",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store)

			err := svc.UpdateSettings(ctx, tt.values)
			if tt.wantErr {
				require.ErrorIs(t, err, errs.ErrInvalidSetting)
				require.Empty(t, store.settings)
				return
			}
			require.NoError(t, err)
			for k, v := range tt.values {
				require.Equal(t, v, store.settings[k])
			}
		})
	}
}

func TestService_BorrowHonorsConfiguredLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedUser(store, 3)
	seedBook(store, 1, model.BookAvailable)
	seedBook(store, 2, model.BookAvailable)
	store.settings[model.SettingMaxBorrow] = "1"
	svc := newTestService(store)

	_, err := svc.Borrow(ctx, 3, 1)
	require.NoError(t, err)

	_, err = svc.Borrow(ctx, 3, 2)
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}
