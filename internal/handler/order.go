package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/session"
)

type OrderHandler struct {
	svc *service.Service
	log *slog.Logger
}

func NewOrderHandler(svc *service.Service, log *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, log: log}
}

type createOrderRequest struct {
	ReservationToken string  `json:"reservation_token" validate:"required,len=64,hexadecimal"`
	PaymentIntentID  string  `json:"payment_intent_id" validate:"required,max=255"`
	CustomerName     string  `json:"customer_name" validate:"required,max=200"`
	Email            string  `json:"email" validate:"required,email,max=254"`
	Phone            *string `json:"phone" validate:"omitempty,max=32"`
	Notes            *string `json:"notes" validate:"omitempty,max=1000"`
}

// Create handles POST /v1/orders. Ticket PDFs and the confirmation email
// follow asynchronously; their failure never changes this response.
func (h *OrderHandler) Create(c echo.Context) error {
	var req createOrderRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	od, err := h.svc.CreateOrder(c.Request().Context(), service.CreateOrderInput{
		ReservationToken: req.ReservationToken,
		PaymentReference: req.PaymentIntentID,
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.Email,
		CustomerPhone:    req.Phone,
		Notes:            req.Notes,
		SessionID:        session.ID(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, newOrderView(od))
}

type refundRequest struct {
	AmountInCents int64  `json:"amount_in_cents" validate:"required,gt=0"`
	Reason        string `json:"reason" validate:"max=500"`
}

// Refund handles POST /v1/orders/:id/refund (staff only).
func (h *OrderHandler) Refund(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	var req refundRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	od, err := h.svc.RefundOrder(c.Request().Context(), id, req.AmountInCents, req.Reason)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newOrderView(od))
}

// Get handles GET /v1/orders/:id (staff only).
func (h *OrderHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	od, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newOrderView(od))
}
