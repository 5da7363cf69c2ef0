package artifact

import (
	"context"
	"time"

	"github.com/iliyamo/studio-box-office/internal/mail"
	"github.com/iliyamo/studio-box-office/internal/model"
)

type OrderReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	GetByNumber(ctx context.Context, number string) (*model.Order, error)
}

type TicketStore interface {
	ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	GetByCode(ctx context.Context, code string) (*model.Ticket, error)
	SetPDF(ctx context.Context, id uint64, url string, at time.Time) error
}

type ShowReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
}

type SeatReader interface {
	GetByIDs(ctx context.Context, ids []uint64) ([]model.ShowSeat, error)
}

// ObjectStore keeps rendered PDFs. Upload returns a URL the customer can
// open.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, bucket, path string) ([]byte, error)
}

// Mailer delivers one message. Failures are reported in the result.
type Mailer interface {
	Send(ctx context.Context, m mail.Message) mail.SendResult
}
