package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studio-box-office/internal/middleware"
	"github.com/iliyamo/studio-box-office/internal/model"
)

// TicketArtifacts is the part of the artifact pipeline the ticket endpoints
// call.
type TicketArtifacts interface {
	GeneratePDFByCode(ctx context.Context, code string) (string, error)
	DownloadTicketPDF(ctx context.Context, ticketID uint64, code string) ([]byte, string, error)
	ResendByOrderNumber(ctx context.Context, orderNumber, email string) (bool, error)
	SendConfirmationEmail(ctx context.Context, orderID uint64, recipient string) bool
}

// TicketScanner admits ticket holders at the door.
type TicketScanner interface {
	ScanTicket(ctx context.Context, code, scannedBy string) (*model.Ticket, error)
}

type TicketHandler struct {
	artifacts TicketArtifacts
	scanner   TicketScanner
	log       *slog.Logger
}

func NewTicketHandler(artifacts TicketArtifacts, scanner TicketScanner, log *slog.Logger) *TicketHandler {
	return &TicketHandler{artifacts: artifacts, scanner: scanner, log: log}
}

type ticketCodeRequest struct {
	TicketCode string `json:"ticket_code" validate:"required,max=64"`
}

// GeneratePDF handles POST /v1/tickets/generate-pdf.
func (h *TicketHandler) GeneratePDF(c echo.Context) error {
	var req ticketCodeRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	url, err := h.artifacts.GeneratePDFByCode(c.Request().Context(), req.TicketCode)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pdf_url": url})
}

// Download handles GET /v1/tickets/:id/download?code=. The code acts as
// the capability for the ticket.
func (h *TicketHandler) Download(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "ticket")
	}
	data, name, err := h.artifacts.DownloadTicketPDF(c.Request().Context(), id, c.QueryParam("code"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+name+`"`)
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=0")
	c.Response().Header().Set(echo.HeaderContentLength, strconv.Itoa(len(data)))
	return c.Blob(http.StatusOK, "application/pdf", data)
}

type resendRequest struct {
	OrderNumber string `json:"order_number" validate:"required,max=32"`
	Email       string `json:"email" validate:"required,email"`
}

// Resend handles POST /v1/tickets/resend-email for customers.
func (h *TicketHandler) Resend(c echo.Context) error {
	var req resendRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	sent, err := h.artifacts.ResendByOrderNumber(c.Request().Context(), req.OrderNumber, req.Email)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sent": sent})
}

type adminResendRequest struct {
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
}

// AdminResend handles POST /v1/admin/orders/:id/resend. Staff may send the
// tickets to another address.
func (h *TicketHandler) AdminResend(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	var req adminResendRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	sent := h.artifacts.SendConfirmationEmail(c.Request().Context(), id, req.RecipientEmail)
	h.log.Info("admin resend", "order_id", id, "by", middleware.UserID(c), "override", req.RecipientEmail != "", "sent", sent)
	return c.JSON(http.StatusOK, echo.Map{"sent": sent})
}

// Scan handles POST /v1/tickets/scan (staff only).
func (h *TicketHandler) Scan(c echo.Context) error {
	var req ticketCodeRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	t, err := h.scanner.ScanTicket(c.Request().Context(), req.TicketCode, "user:"+middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newTicketView(*t))
}
