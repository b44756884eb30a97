package db

import "context"

func (q *Queries) GetAdminByEmail(ctx context.Context, email string) (Admin, error) {
	var a Admin
	err := q.db.QueryRow(ctx, `SELECT id, email, password_hash, created_at FROM admins WHERE email = $1`, email).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

type CreateAdminParams struct {
	Email        string
	PasswordHash string
}

func (q *Queries) CreateAdmin(ctx context.Context, arg CreateAdminParams) (Admin, error) {
	var a Admin
	err := q.db.QueryRow(ctx, `
		INSERT INTO admins (email, password_hash) VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at`,
		arg.Email, arg.PasswordHash).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	return a, err
}
