// Package httpapi публикует запросы чтения по клиенту как HTTP JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
	"github.com/vladislavdragonenkov/orderms/internal/service/orders"
)

const (
	DefaultPage = 1

	paramCustomerID = "customerId"
	queryPage       = "page"
	queryPageSize   = "pageSize"
)

// OrderQueries описывает операции чтения, которые нужны роутеру.
type OrderQueries interface {
	ListOrders(ctx context.Context, customerID int64, page, size int) (domain.Page[orders.OrderResponse], error)
	TotalSpend(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

// Summary содержит сумму по всем заказам клиента.
type Summary struct {
	TotalOnOrders decimal.Decimal `json:"totalOnOrders"`
}

// Pagination описывает положение страницы.
type Pagination struct {
	Page          int   `json:"page"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// OrdersResponse тело ответа на список заказов клиента.
type OrdersResponse struct {
	Summary    Summary                `json:"summary"`
	Data       []orders.OrderResponse `json:"data"`
	Pagination Pagination             `json:"pagination"`
}

// TotalResponse тело ответа на запрос суммы.
type TotalResponse struct {
	CustomerID int64           `json:"customerId"`
	Total      decimal.Decimal `json:"total"`
}

// ErrorResponse тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	queries OrderQueries
	logger  *log.Entry
}

// NewRouter собирает chi-роутер с маршрутами заказов.
// Вызывающий может добавить на него служебные маршруты.
func NewRouter(queries OrderQueries, logger *log.Entry) *chi.Mux {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	h := &handler{queries: queries, logger: logger.WithField("component", "http-api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Route("/customers/{"+paramCustomerID+"}/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/total", h.totalSpend)
	})

	return r
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}
	page, ok := h.intQuery(w, r, queryPage, DefaultPage)
	if !ok {
		return
	}
	size, ok := h.intQuery(w, r, queryPageSize, domain.DefaultPageSize)
	if !ok {
		return
	}

	result, err := h.queries.ListOrders(r.Context(), customerID, page, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total, err := h.queries.TotalSpend(r.Context(), customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OrdersResponse{
		Summary: Summary{TotalOnOrders: total},
		Data:    result.Items,
		Pagination: Pagination{
			Page:          result.Number,
			PageSize:      result.Size,
			TotalElements: result.TotalElements,
			TotalPages:    result.TotalPages(),
		},
	})
}

func (h *handler) totalSpend(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.customerID(w, r)
	if !ok {
		return
	}

	total, err := h.queries.TotalSpend(r.Context(), customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TotalResponse{CustomerID: customerID, Total: total})
}

func (h *handler) customerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, paramCustomerID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "customerId must be an integer"})
		return 0, false
	}
	return id, true
}

func (h *handler) intQuery(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: name + " must be an integer"})
		return 0, false
	}
	return v, true
}

// writeError переводит ошибки домена в HTTP-статусы.
// Детали ошибок хранилища в ответ не попадают.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsValidation(err) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	h.logger.WithError(err).WithFields(log.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
