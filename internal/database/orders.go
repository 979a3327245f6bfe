package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOrder = `
INSERT INTO orders (id, created_at, status, email, name, phone, address, notes, subtotal, public_token)
VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at, status, email, name, phone, address, notes, subtotal, public_token
`

type CreateOrderParams struct {
	ID          uuid.UUID
	Status      string
	Email       string
	Name        pgtype.Text
	Phone       string
	Address     string
	Notes       string
	Subtotal    int64
	PublicToken string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ID, arg.Status, arg.Email, arg.Name, arg.Phone, arg.Address, arg.Notes, arg.Subtotal, arg.PublicToken)
	var o Order
	err := row.Scan(&o.ID, &o.CreatedAt, &o.Status, &o.Email, &o.Name, &o.Phone, &o.Address, &o.Notes, &o.Subtotal, &o.PublicToken)
	return o, err
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, title, unit_price, qty, options)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, product_id, title, unit_price, qty, options
`

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID string
	Title     string
	UnitPrice int64
	Qty       int32
	Options   []byte
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Title, arg.UnitPrice, arg.Qty, arg.Options)
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Title, &i.UnitPrice, &i.Qty, &i.Options)
	return i, err
}

const createOrderPhoto = `
INSERT INTO order_photos (order_id, filename, original_name, mime, size)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, filename, original_name, mime, size
`

type CreateOrderPhotoParams struct {
	OrderID      uuid.UUID
	Filename     string
	OriginalName string
	Mime         string
	Size         int64
}

func (q *Queries) CreateOrderPhoto(ctx context.Context, arg CreateOrderPhotoParams) (OrderPhoto, error) {
	row := q.db.QueryRow(ctx, createOrderPhoto,
		arg.OrderID, arg.Filename, arg.OriginalName, arg.Mime, arg.Size)
	var p OrderPhoto
	err := row.Scan(&p.ID, &p.OrderID, &p.Filename, &p.OriginalName, &p.Mime, &p.Size)
	return p, err
}

const getOrder = `
SELECT id, created_at, status, email, name, phone, address, notes, subtotal, public_token
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	var o Order
	err := row.Scan(&o.ID, &o.CreatedAt, &o.Status, &o.Email, &o.Name, &o.Phone, &o.Address, &o.Notes, &o.Subtotal, &o.PublicToken)
	return o, err
}

const getPublicOrder = `
SELECT id, created_at, status, subtotal
FROM orders
WHERE id = $1 AND public_token = $2
`

type GetPublicOrderParams struct {
	ID          uuid.UUID
	PublicToken string
}

// GetPublicOrderRow deliberately carries no PII columns.
type GetPublicOrderRow struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Status    string
	Subtotal  int64
}

func (q *Queries) GetPublicOrder(ctx context.Context, arg GetPublicOrderParams) (GetPublicOrderRow, error) {
	row := q.db.QueryRow(ctx, getPublicOrder, arg.ID, arg.PublicToken)
	var r GetPublicOrderRow
	err := row.Scan(&r.ID, &r.CreatedAt, &r.Status, &r.Subtotal)
	return r, err
}

const listOrderItemsByOrder = `
SELECT id, order_id, product_id, title, unit_price, qty, options
FROM order_items
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Title, &i.UnitPrice, &i.Qty, &i.Options); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listOrderPhotosByOrder = `
SELECT id, order_id, filename, original_name, mime, size
FROM order_photos
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderPhotosByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderPhoto, error) {
	rows, err := q.db.Query(ctx, listOrderPhotosByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var photos []OrderPhoto
	for rows.Next() {
		var p OrderPhoto
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Filename, &p.OriginalName, &p.Mime, &p.Size); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

const updateOrderStatus = `
UPDATE orders
SET status = $2
WHERE id = $1 AND status = $3
RETURNING id, created_at, status, email, name, phone, address, notes, subtotal, public_token
`

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

// UpdateOrderStatus performs a compare-and-set: it only updates when the
// current status still matches FromStatus, so a concurrent transition
// surfaces as pgx.ErrNoRows instead of silently winning.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus)
	var o Order
	err := row.Scan(&o.ID, &o.CreatedAt, &o.Status, &o.Email, &o.Name, &o.Phone, &o.Address, &o.Notes, &o.Subtotal, &o.PublicToken)
	return o, err
}

// --- Admin listing (dynamic filters + allow-listed sorting) ---

// ListOrdersParams mirrors the legacy admin query string: free-text search
// over email/name/id, a created_at date range, allow-listed sorting, paging.
type ListOrdersParams struct {
	Search  string
	From    pgtype.Timestamptz
	To      pgtype.Timestamptz
	SortBy  string
	SortDir string
	Limit   int32
	Offset  int32
}

// ListOrdersRow is the admin list projection, photo count included.
type ListOrdersRow struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Status      string
	Email       string
	Name        pgtype.Text
	Phone       string
	Subtotal    int64
	PhotosCount int64
}

// sortColumns is the allow-list of sortable columns. Anything else falls
// back to created_at.
var sortColumns = map[string]string{
	"created_at":   "o.created_at",
	"status":       "o.status",
	"subtotal":     "o.subtotal",
	"email":        "o.email",
	"name":         "o.name",
	"photos_count": "photos_count",
}

func buildOrderFilters(arg ListOrdersParams) (string, []any) {
	var conds []string
	var params []any

	if s := strings.TrimSpace(arg.Search); s != "" {
		params = append(params, "%"+strings.ToLower(s)+"%")
		n := len(params)
		conds = append(conds, fmt.Sprintf("(LOWER(o.email) LIKE $%d OR LOWER(o.name) LIKE $%d OR o.id::text LIKE $%d)", n, n, n))
	}
	if arg.From.Valid {
		params = append(params, arg.From)
		conds = append(conds, fmt.Sprintf("o.created_at >= $%d", len(params)))
	}
	if arg.To.Valid {
		params = append(params, arg.To)
		conds = append(conds, fmt.Sprintf("o.created_at <= $%d", len(params)))
	}

	if len(conds) == 0 {
		return "", params
	}
	return "WHERE " + strings.Join(conds, " AND "), params
}

func buildOrderSorting(sortBy, sortDir string) string {
	col, ok := sortColumns[strings.TrimSpace(sortBy)]
	if !ok {
		col = sortColumns["created_at"]
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(sortDir), "asc") {
		dir = "ASC"
	}
	// Stable tie-break on newest-first, matching the legacy default.
	if col == "o.created_at" {
		return fmt.Sprintf("ORDER BY %s %s", col, dir)
	}
	return fmt.Sprintf("ORDER BY %s %s, o.created_at DESC", col, dir)
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]ListOrdersRow, error) {
	where, params := buildOrderFilters(arg)
	orderBy := buildOrderSorting(arg.SortBy, arg.SortDir)

	params = append(params, arg.Limit)
	limitPos := len(params)
	params = append(params, arg.Offset)
	offsetPos := len(params)

	sql := fmt.Sprintf(`
SELECT
  o.id, o.created_at, o.status, o.email, o.name, o.phone, o.subtotal,
  (SELECT COUNT(1) FROM order_photos p WHERE p.order_id = o.id) AS photos_count
FROM orders o
%s
%s
LIMIT $%d OFFSET $%d
`, where, orderBy, limitPos, offsetPos)

	rows, err := q.db.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ListOrdersRow
	for rows.Next() {
		var r ListOrdersRow
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Status, &r.Email, &r.Name, &r.Phone, &r.Subtotal, &r.PhotosCount); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (q *Queries) CountOrders(ctx context.Context, arg ListOrdersParams) (int64, error) {
	where, params := buildOrderFilters(arg)
	sql := fmt.Sprintf("SELECT COUNT(1) FROM orders o %s", where)
	var total int64
	err := q.db.QueryRow(ctx, sql, params...).Scan(&total)
	return total, err
}
