package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/errs"
	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
)

// Tx is the store surface an engine operation sees inside its
// serializable transaction. Book status and loan rows are only ever
// written through it.
type Tx interface {
	GetBook(ctx context.Context, id int) (model.Book, error)
	SetBookStatus(ctx context.Context, id int, status model.BookStatus) error

	OpenLoanCount(ctx context.Context, userID int) (int, error)
	GetLoan(ctx context.Context, id int) (model.Loan, error)
	CreateLoan(ctx context.Context, userID, bookID int, borrowDate, dueDate model.Date) (model.Loan, error)
	CloseLoan(ctx context.Context, id int, returnDate model.Date, fine float64) (model.Loan, error)
	SettleFine(ctx context.Context, id int) error

	GetReservation(ctx context.Context, id int) (model.Reservation, error)
	CreateReservation(ctx context.Context, userID, bookID int, date model.Date) (model.Reservation, error)
	SetReservationStatus(ctx context.Context, id int, status model.ReservationStatus) error

	Setting(ctx context.Context, key string) (string, error)
	UpsertSetting(ctx context.Context, key, value string) error
}

const (
	txAttempts = 3
	txBackoff  = 20 * time.Millisecond
)

// WithinTx runs fn in a serializable transaction, retrying commit
// conflicts a bounded number of times before surfacing ErrStoreConflict.
func (r *repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = r.runTx(ctx, fn); !retryable(err) {
			return err
		}
		r.log.Warn("tx serialization conflict",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt == txAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * txBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.WithMessage(errs.ErrStoreConflict, err.Error())
}

func (r *repository) runTx(ctx context.Context, fn func(tx Tx) error) error {
	txx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return convertErr(err)
	}
	if err := fn(&tx{tx: txx}); err != nil {
		_ = txx.Rollback()
		return err
	}
	if err := txx.Commit(); err != nil {
		if retryable(err) {
			return err
		}
		return convertErr(err)
	}
	return nil
}

type tx struct {
	tx *sqlx.Tx
}

func (t *tx) GetBook(ctx context.Context, id int) (model.Book, error) {
	return getBook(ctx, t.tx, id)
}

func (t *tx) SetBookStatus(ctx context.Context, id int, status model.BookStatus) error {
	query, args, err := qb.Update(booksTableName).
		Set("status", status).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return convertErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *tx) OpenLoanCount(ctx context.Context, userID int) (int, error) {
	q := `
	select count(*) from loans
	where user_id = $1 and return_date is null
`
	var count int
	if err := t.tx.GetContext(ctx, &count, q, userID); err != nil {
		return 0, convertErr(err)
	}
	return count, nil
}

func (t *tx) GetLoan(ctx context.Context, id int) (model.Loan, error) {
	query, args, err := qb.Select("id", "user_id", "book_id", "borrow_date", "due_date",
		"return_date", "fine", "fine_settled").
		From(loansTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	var loan model.Loan
	if err := t.tx.GetContext(ctx, &loan, query, args...); err != nil {
		return model.Loan{}, convertErr(err)
	}
	return loan, nil
}

func (t *tx) CreateLoan(ctx context.Context, userID, bookID int, borrowDate, dueDate model.Date) (model.Loan, error) {
	query, args, err := qb.Insert(loansTableName).
		Columns("user_id", "book_id", "borrow_date", "due_date").
		Values(userID, bookID, borrowDate, dueDate).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	var loan model.Loan
	if err := t.tx.GetContext(ctx, &loan, query, args...); err != nil {
		return model.Loan{}, convertErr(err)
	}
	return loan, nil
}

func (t *tx) CloseLoan(ctx context.Context, id int, returnDate model.Date, fine float64) (model.Loan, error) {
	query, args, err := qb.Update(loansTableName).
		Set("return_date", returnDate).
		Set("fine", fine).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	var loan model.Loan
	if err := t.tx.GetContext(ctx, &loan, query, args...); err != nil {
		return model.Loan{}, convertErr(err)
	}
	return loan, nil
}

func (t *tx) SettleFine(ctx context.Context, id int) error {
	query, args, err := qb.Update(loansTableName).
		Set("fine_settled", true).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return convertErr(err)
	}
	return nil
}

func (t *tx) GetReservation(ctx context.Context, id int) (model.Reservation, error) {
	query, args, err := qb.Select("id", "user_id", "book_id", "reservation_date", "status").
		From(reservationsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var rsv model.Reservation
	if err := t.tx.GetContext(ctx, &rsv, query, args...); err != nil {
		return model.Reservation{}, convertErr(err)
	}
	return rsv, nil
}

func (t *tx) CreateReservation(ctx context.Context, userID, bookID int, date model.Date) (model.Reservation, error) {
	query, args, err := qb.Insert(reservationsTableName).
		Columns("user_id", "book_id", "reservation_date", "status").
		Values(userID, bookID, date, model.ReservationPending).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var rsv model.Reservation
	if err := t.tx.GetContext(ctx, &rsv, query, args...); err != nil {
		return model.Reservation{}, convertErr(err)
	}
	return rsv, nil
}

func (t *tx) SetReservationStatus(ctx context.Context, id int, status model.ReservationStatus) error {
	query, args, err := qb.Update(reservationsTableName).
		Set("status", status).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return convertErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *tx) Setting(ctx context.Context, key string) (string, error) {
	q := `
	select value from settings where key = $1
`
	var value string
	if err := t.tx.GetContext(ctx, &value, q, key); err != nil {
		return "", convertErr(err)
	}
	return value, nil
}

func (t *tx) UpsertSetting(ctx context.Context, key, value string) error {
	q := `
	insert into settings(key, value) values ($1, $2)
	on conflict (key) do update set value = excluded.value
`
	if _, err := t.tx.ExecContext(ctx, q, key, value); err != nil {
		return convertErr(err)
	}
	return nil
}

func getBook(ctx context.Context, q sqlx.QueryerContext, id int) (model.Book, error) {
	query, args, err := qb.Select("id", "title", "author", "category", "year", "status").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := sqlx.GetContext(ctx, q, &book, query, args...); err != nil {
		return model.Book{}, convertErr(err)
	}
	return book, nil
}
