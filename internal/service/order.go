package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/enum"
	"github.com/twojapodobizna/api/internal/pricing"
	"github.com/twojapodobizna/api/internal/upload"
)

// Errors returned by the order service.
var (
	ErrMissingFields  = errors.New("required fields are missing")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrInvalidAddress = errors.New("invalid address")
	ErrNotesTooShort  = errors.New("notes too short")
	ErrInvalidCart    = errors.New("invalid cart")
)

const minNotesLen = 20

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

var nonDigitRe = regexp.MustCompile(`\D+`)

// TxBeginner starts a new database transaction. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to persist an order.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderPhoto(ctx context.Context, arg database.CreateOrderPhotoParams) (database.OrderPhoto, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// IntakeRequest is a raw order submission. Photos are expected to be
// already saved on disk; the caller removes them again if intake fails.
type IntakeRequest struct {
	Name    string
	Email   string
	Phone   string
	Address string
	Notes   string
	Cart    []pricing.Line
	Photos  []upload.SavedPhoto
}

// IntakeResult is the fully persisted order.
type IntakeResult struct {
	Order  database.Order
	Items  []database.OrderItem
	Photos []database.OrderPhoto
}

// OrderService handles order intake.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// ValidateContact checks the required customer fields. It is split from
// CreateOrder so handlers can fail a request before any photo hits disk.
func ValidateContact(email, phone, address, notes string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(phone) == "" ||
		strings.TrimSpace(address) == "" || strings.TrimSpace(notes) == "" {
		return ErrMissingFields
	}
	if !emailRe.MatchString(strings.TrimSpace(email)) {
		return ErrInvalidEmail
	}
	if !validPhone(phone) {
		return ErrInvalidPhone
	}
	if len(strings.TrimSpace(address)) < 3 {
		return ErrInvalidAddress
	}
	if len([]rune(strings.TrimSpace(notes))) < minNotesLen {
		return ErrNotesTooShort
	}
	return nil
}

// validPhone requires at least 9 digits after stripping formatting and one
// optional leading 48 country code.
func validPhone(phone string) bool {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "48") && len(digits) > 9 {
		digits = digits[2:]
	}
	return len(digits) >= 9
}

// ParseCart decodes the optional client cart. Malformed JSON is treated as
// an empty cart rather than an error; pricing stays strict regardless.
func ParseCart(raw string) []pricing.Line {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var lines []pricing.Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil
	}
	return lines
}

// CreateOrder validates the submission, prices the cart server-side and
// persists order + items + photos in one transaction. Nothing is written
// when any part fails.
func (s *OrderService) CreateOrder(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	if err := ValidateContact(req.Email, req.Phone, req.Address, req.Notes); err != nil {
		return nil, err
	}

	priced, subtotal, err := pricing.CartTotals(req.Cart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCart, err)
	}

	token, err := newPublicToken()
	if err != nil {
		return nil, fmt.Errorf("public token: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	name := pgtype.Text{}
	if n := strings.TrimSpace(req.Name); n != "" {
		name = pgtype.Text{String: n, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		ID:          uuid.New(),
		Status:      enum.OrderStatusPending,
		Email:       strings.TrimSpace(req.Email),
		Name:        name,
		Phone:       strings.TrimSpace(req.Phone),
		Address:     strings.TrimSpace(req.Address),
		Notes:       strings.TrimSpace(req.Notes),
		Subtotal:    subtotal,
		PublicToken: token,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(priced))
	for _, line := range priced {
		opts, err := json.Marshal(line.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Qty:       int32(line.Qty),
			Options:   opts,
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	photos := make([]database.OrderPhoto, 0, len(req.Photos))
	for _, p := range req.Photos {
		photo, err := store.CreateOrderPhoto(ctx, database.CreateOrderPhotoParams{
			OrderID:      order.ID,
			Filename:     p.Filename,
			OriginalName: p.OriginalName,
			Mime:         p.Mime,
			Size:         p.Size,
		})
		if err != nil {
			return nil, fmt.Errorf("create order photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &IntakeResult{Order: order, Items: items, Photos: photos}, nil
}

// IsValidationError reports whether the error should map to a 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrNotesTooShort) ||
		errors.Is(err, ErrInvalidCart)
}

// newPublicToken returns 32 random bytes hex-encoded. The token is the only
// credential for the public status page, so it has to be unguessable.
func newPublicToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
