package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Order is a persisted order header. Money columns are int64 grosze.
type Order struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Status      string
	Email       string
	Name        pgtype.Text
	Phone       string
	Address     string
	Notes       string
	Subtotal    int64
	PublicToken string
}

// OrderItem is one priced cart line belonging to an order.
type OrderItem struct {
	ID        int64
	OrderID   uuid.UUID
	ProductID string
	Title     string
	UnitPrice int64
	Qty       int32
	Options   []byte // jsonb
}

// OrderPhoto is the metadata of one uploaded reference photo.
// Filename is server-generated; OriginalName is untrusted display text.
type OrderPhoto struct {
	ID           int64
	OrderID      uuid.UUID
	Filename     string
	OriginalName string
	Mime         string
	Size         int64
}

// ContactMessage is a standalone contact-form submission.
type ContactMessage struct {
	ID        uuid.UUID
	Email     string
	Message   string
	CreatedAt time.Time
	IP        pgtype.Text
}
