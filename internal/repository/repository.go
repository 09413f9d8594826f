package repository

import (
	"context"
	"database/sql"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/errs"
	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
)

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

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

	ListOpenLoans(ctx context.Context) ([]model.LoanRow, error)
	ListLoans(ctx context.Context) ([]model.LoanRow, error)
	ListFines(ctx context.Context) ([]model.LoanRow, error)
	ListReservations(ctx context.Context) ([]model.ReservationRow, error)

	Settings(ctx context.Context) ([]model.Setting, error)
	Report(ctx context.Context) (model.Report, error)
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName        = `users`
	booksTableName        = `books`
	loansTableName        = `loans`
	reservationsTableName = `reservations`
	settingsTableName     = `settings`

	openBookConstraint = `loans_open_book_uq`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// convertErr maps driver failures onto the engine's error kinds so that
// callers never see raw store errors.
func convertErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.ForeignKeyViolation:
			return errors.WithMessage(errs.ErrNotFound, "referenced row")
		case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == openBookConstraint:
			return errs.ErrNotAvailable
		case pgerrcode.IsConnectionException(pgErr.Code):
			return errors.WithMessage(errs.ErrStoreUnavailable, pgErr.Message)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.WithMessage(errs.ErrStoreUnavailable, err.Error())
	}
	return err
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure ||
		pgErr.Code == pgerrcode.DeadlockDetected
}

func (r *repository) GetBook(ctx context.Context, id int) (model.Book, error) {
	return getBook(ctx, r.db, id)
}

func (r *repository) SearchBooks(ctx context.Context, text string) ([]model.Book, error) {
	pat := "%" + text + "%"
	query, args, err := qb.Select("id", "title", "author", "category", "year", "status").
		From(booksTableName).
		Where(sq.Or{
			sq.ILike{"title": pat},
			sq.ILike{"author": pat},
			sq.ILike{"category": pat},
		}).
		OrderBy("title").
		ToSql()
	if err != nil {
		return nil, err
	}
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, convertErr(err)
	}
	return books, nil
}

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	return r.selectBooks(ctx, qb.Select("id", "title", "author", "category", "year", "status").
		From(booksTableName).
		OrderBy("id DESC"))
}

func (r *repository) ListAvailableBooks(ctx context.Context) ([]model.Book, error) {
	return r.selectBooks(ctx, qb.Select("id", "title", "author", "category", "year", "status").
		From(booksTableName).
		Where(sq.Eq{"status": model.BookAvailable}).
		OrderBy("title"))
}

func (r *repository) selectBooks(ctx context.Context, b sq.SelectBuilder) ([]model.Book, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, convertErr(err)
	}
	return books, nil
}

func (r *repository) CreateBook(ctx context.Context, req model.BookRequest) (model.Book, error) {
	query, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "category", "year", "status").
		Values(req.Title, req.Author, req.Category, req.Year, model.BookAvailable).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", query), zap.Any("args", args))
		return model.Book{}, convertErr(err)
	}
	return book, nil
}

func (r *repository) UpdateBook(ctx context.Context, id int, req model.BookRequest) (model.Book, error) {
	query, args, err := qb.Update(booksTableName).
		Set("title", req.Title).
		Set("author", req.Author).
		Set("category", req.Category).
		Set("year", req.Year).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		return model.Book{}, convertErr(err)
	}
	return book, nil
}

func (r *repository) DeleteBook(ctx context.Context, id int) error {
	return r.deleteByID(ctx, booksTableName, id)
}

func (r *repository) GetUser(ctx context.Context, id int) (model.User, error) {
	query, args, err := qb.Select("id", "name", "role", "email", "password").
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		return model.User{}, convertErr(err)
	}
	return user, nil
}

func (r *repository) ListUsers(ctx context.Context) ([]model.User, error) {
	query, args, err := qb.Select("id", "name", "role", "email", "password").
		From(usersTableName).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, convertErr(err)
	}
	return users, nil
}

func (r *repository) CreateUser(ctx context.Context, req model.UserRequest) (model.User, error) {
	query, args, err := qb.Insert(usersTableName).
		Columns("name", "role", "email", "password").
		Values(req.Name, req.Role, req.Email, req.Password).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		r.log.Error("CreateUser", zap.String("q", query), zap.Any("args", args))
		return model.User{}, convertErr(err)
	}
	return user, nil
}

func (r *repository) UpdateUser(ctx context.Context, id int, req model.UserRequest) (model.User, error) {
	query, args, err := qb.Update(usersTableName).
		Set("name", req.Name).
		Set("role", req.Role).
		Set("email", req.Email).
		Set("password", req.Password).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		return model.User{}, convertErr(err)
	}
	return user, nil
}

func (r *repository) DeleteUser(ctx context.Context, id int) error {
	return r.deleteByID(ctx, usersTableName, id)
}

func (r *repository) SetRole(ctx context.Context, id int, role model.Role) (model.User, error) {
	query, args, err := qb.Update(usersTableName).
		Set("role", role).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		return model.User{}, convertErr(err)
	}
	return user, nil
}

func (r *repository) deleteByID(ctx context.Context, table string, id int) error {
	query, args, err := qb.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return convertErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

const loanRowColumns = `l.id, u.name AS user_name, b.title AS book_title,
	l.borrow_date, l.due_date, l.return_date, l.fine, l.fine_settled`

func (r *repository) ListOpenLoans(ctx context.Context) ([]model.LoanRow, error) {
	return r.selectLoanRows(ctx, qb.Select(loanRowColumns).
		From(loansTableName+" l").
		Join(usersTableName+" u ON l.user_id = u.id").
		Join(booksTableName+" b ON l.book_id = b.id").
		Where("l.return_date IS NULL").
		OrderBy("l.due_date"))
}

func (r *repository) ListLoans(ctx context.Context) ([]model.LoanRow, error) {
	return r.selectLoanRows(ctx, qb.Select(loanRowColumns).
		From(loansTableName+" l").
		Join(usersTableName+" u ON l.user_id = u.id").
		Join(booksTableName+" b ON l.book_id = b.id").
		OrderBy("l.id DESC"))
}

func (r *repository) ListFines(ctx context.Context) ([]model.LoanRow, error) {
	return r.selectLoanRows(ctx, qb.Select(loanRowColumns).
		From(loansTableName+" l").
		Join(usersTableName+" u ON l.user_id = u.id").
		Join(booksTableName+" b ON l.book_id = b.id").
		Where("l.return_date IS NOT NULL").
		Where(sq.Gt{"l.fine": 0}).
		OrderBy("l.id DESC"))
}

func (r *repository) selectLoanRows(ctx context.Context, b sq.SelectBuilder) ([]model.LoanRow, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []model.LoanRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, convertErr(err)
	}
	return rows, nil
}

func (r *repository) ListReservations(ctx context.Context) ([]model.ReservationRow, error) {
	query, args, err := qb.Select("r.id", "u.name AS user_name", "b.title AS book_title",
		"r.reservation_date", "r.status").
		From(reservationsTableName+" r").
		Join(usersTableName+" u ON r.user_id = u.id").
		Join(booksTableName+" b ON r.book_id = b.id").
		OrderBy("r.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []model.ReservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, convertErr(err)
	}
	return rows, nil
}

func (r *repository) Settings(ctx context.Context) ([]model.Setting, error) {
	query, args, err := qb.Select("key", "value").
		From(settingsTableName).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, err
	}
	var settings []model.Setting
	if err := r.db.SelectContext(ctx, &settings, query, args...); err != nil {
		return nil, convertErr(err)
	}
	return settings, nil
}

func (r *repository) Report(ctx context.Context) (model.Report, error) {
	q := `
	select (select count(*) from books)                                                  as total_books,
	       (select count(*) from books where status = 'borrowed')                        as borrowed_now,
	       (select count(*) from users)                                                  as total_users,
	       (select coalesce(sum(fine), 0) from loans where fine > 0 and not fine_settled) as unsettled_fines
`
	var report model.Report
	if err := r.db.GetContext(ctx, &report, q); err != nil {
		return model.Report{}, convertErr(err)
	}
	return report, nil
}

// Snapshot reads all five tables in one repeatable-read transaction so
// the exported state is internally consistent.
func (r *repository) Snapshot(ctx context.Context) (model.Snapshot, error) {
	txx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return model.Snapshot{}, convertErr(err)
	}
	defer txx.Rollback() //nolint:errcheck

	snap := model.Snapshot{CreatedAt: time.Now().UTC()}
	if err := txx.SelectContext(ctx, &snap.Users, `select * from users order by id`); err != nil {
		return model.Snapshot{}, convertErr(err)
	}
	if err := txx.SelectContext(ctx, &snap.Books, `select * from books order by id`); err != nil {
		return model.Snapshot{}, convertErr(err)
	}
	if err := txx.SelectContext(ctx, &snap.Loans, `select * from loans order by id`); err != nil {
		return model.Snapshot{}, convertErr(err)
	}
	if err := txx.SelectContext(ctx, &snap.Reservations, `select * from reservations order by id`); err != nil {
		return model.Snapshot{}, convertErr(err)
	}
	if err := txx.SelectContext(ctx, &snap.Settings, `select * from settings order by key`); err != nil {
		return model.Snapshot{}, convertErr(err)
	}
	return snap, txx.Commit()
}
