package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/internal/errs"
	"github.com/myarnwas/Library-Management-System-LMS/internal/handler"
	"github.com/myarnwas/Library-Management-System-LMS/internal/model"
	"github.com/myarnwas/Library-Management-System-LMS/pkg/validate"

	service_mocks "github.com/myarnwas/Library-Management-System-LMS/internal/handler/mocks"
)

func date(y int, m time.Month, d int) model.Date {
	return model.NewDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func TestHandler_Borrow(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"userId":3,"bookId":7}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Borrow(context.Background(), 3, 7).
					Return(model.Loan{
						ID:         1,
						UserID:     3,
						BookID:     7,
						BorrowDate: date(2024, 3, 1),
						DueDate:    date(2024, 3, 15),
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"userId":3,"bookId":7,"borrowDate":"2024-03-01","dueDate":"2024-03-15","returnDate":null,"fine":0,"fineSettled":false}`,
			},
		},
		{
			name:         "err. missing bookId",
			body:         `{"userId":3}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
		{
			name: "err. limit exceeded",
			body: `{"userId":3,"bookId":7}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Borrow(context.Background(), 3, 7).
					Return(model.Loan{}, errs.ErrLimitExceeded)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"max borrow limit reached"}`,
			},
		},
		{
			name: "err. book not available",
			body: `{"userId":3,"bookId":7}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Borrow(context.Background(), 3, 7).
					Return(model.Loan{}, errors.WithMessage(errs.ErrNotAvailable, "book 7"))
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"book 7: book is not available"}`,
			},
		},
		{
			name: "err. book not found",
			body: `{"userId":3,"bookId":7}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Borrow(context.Background(), 3, 7).
					Return(model.Loan{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			h := handler.New(svc, zap.NewNop())

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/loans", h.Borrow)

			r := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_Return(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCirculationService)

	returnDate := date(2024, 3, 21)

	var tests = []struct {
		name         string
		path         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok with fine",
			path: "/loans/1/return",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Return(context.Background(), 1).
					Return(model.Loan{
						ID:         1,
						UserID:     3,
						BookID:     7,
						BorrowDate: date(2024, 3, 1),
						DueDate:    date(2024, 3, 15),
						ReturnDate: &returnDate,
						Fine:       6,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":1,"userId":3,"bookId":7,"borrowDate":"2024-03-01","dueDate":"2024-03-15","returnDate":"2024-03-21","fine":6,"fineSettled":false}`,
			},
		},
		{
			name: "err. already returned",
			path: "/loans/1/return",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Return(context.Background(), 1).
					Return(model.Loan{}, errs.ErrAlreadyReturned)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"loan already returned"}`,
			},
		},
		{
			name: "err. loan not found",
			path: "/loans/99/return",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Return(context.Background(), 99).
					Return(model.Loan{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
		},
		{
			name:         "err. bad id",
			path:         "/loans/abc/return",
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"invalid id"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			h := handler.New(svc, zap.NewNop())

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/loans/:id/return", h.Return)

			r := httptest.NewRequest(http.MethodPost, tt.path, http.NoBody)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ResolveReservation(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"outcome":"completed"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					ResolveReservation(context.Background(), 5, model.ReservationCompleted).
					Return(model.Reservation{
						ID:              5,
						UserID:          3,
						BookID:          7,
						ReservationDate: date(2024, 3, 1),
						Status:          model.ReservationCompleted,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":5,"userId":3,"bookId":7,"reservationDate":"2024-03-01","status":"completed"}`,
			},
		},
		{
			name:         "err. bad outcome",
			body:         `{"outcome":"done"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
		{
			name: "err. already resolved",
			body: `{"outcome":"canceled"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					ResolveReservation(context.Background(), 5, model.ReservationCanceled).
					Return(model.Reservation{}, errs.ErrAlreadyResolved)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"reservation already resolved"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			h := handler.New(svc, zap.NewNop())

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/reservations/:id/resolve", h.ResolveReservation)

			r := httptest.NewRequest(http.MethodPost, "/reservations/5/resolve", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_UpdateSettings(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			body: `{"borrow_days":"21"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					UpdateSettings(context.Background(), map[string]string{"borrow_days": "21"}).
					Return(nil)
				r.EXPECT().
					Settings(context.Background()).
					Return(map[string]string{
						"borrow_days":  "21",
						"fine_per_day": "1",
						"max_borrow":   "5",
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"borrow_days":"21","fine_per_day":"1","max_borrow":"5"}`,
			},
		},
		{
			name: "err. invalid value",
			body: `{"borrow_days":"abc"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					UpdateSettings(context.Background(), map[string]string{"borrow_days": "abc"}).
					Return(errors.WithMessage(errs.ErrInvalidSetting, `borrow_days="abc": want positive integer`))
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"borrow_days=\"abc\": want positive integer: invalid setting value"}`,
			},
		},
		{
			name:         "err. empty body",
			body:         `{}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"empty settings"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			h := handler.New(svc, zap.NewNop())

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.PUT("/settings", h.UpdateSettings)

			r := httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}
