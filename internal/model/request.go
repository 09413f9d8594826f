package model

type BorrowRequest struct {
	UserID int `json:"userId" validate:"required,gt=0"`
	BookID int `json:"bookId" validate:"required,gt=0"`
}

type ReserveRequest struct {
	UserID int `json:"userId" validate:"required,gt=0"`
	BookID int `json:"bookId" validate:"required,gt=0"`
}

type ResolveReservationRequest struct {
	Outcome ReservationStatus `json:"outcome" validate:"required,oneof=completed canceled"`
}

type BookRequest struct {
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author" validate:"required"`
	Category string `json:"category"`
	Year     int    `json:"year" validate:"gte=0"`
}

type UserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Role     Role   `json:"role" validate:"required,oneof=Student Librarian Admin"`
	Password string `json:"password" validate:"required"`
}

type SetRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=Student Librarian Admin"`
}

type BackupResult struct {
	Path string `json:"path"`
	Key  string `json:"key,omitempty"`
}
