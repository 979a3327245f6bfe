package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createContactMessage = `
INSERT INTO contact_messages (id, email, message, created_at, ip)
VALUES ($1, $2, $3, now(), $4)
RETURNING id, email, message, created_at, ip
`

type CreateContactMessageParams struct {
	ID      uuid.UUID
	Email   string
	Message string
	IP      pgtype.Text
}

func (q *Queries) CreateContactMessage(ctx context.Context, arg CreateContactMessageParams) (ContactMessage, error) {
	row := q.db.QueryRow(ctx, createContactMessage, arg.ID, arg.Email, arg.Message, arg.IP)
	var m ContactMessage
	err := row.Scan(&m.ID, &m.Email, &m.Message, &m.CreatedAt, &m.IP)
	return m, err
}
