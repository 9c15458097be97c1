package postgres

import (
	"context"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

type operatorRepository struct {
	q querier
}

func (r *operatorRepository) Create(ctx context.Context, login, passwordHash string) (*model.Operator, error) {
	const query = `INSERT INTO operators (login, password_hash) VALUES ($1, $2) RETURNING id, created_at`
	var op model.Operator
	if err := r.q.QueryRow(ctx, query, login, passwordHash).Scan(&op.ID, &op.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	op.Login = login
	op.PasswordHash = passwordHash
	return &op, nil
}

func (r *operatorRepository) GetByLogin(ctx context.Context, login string) (*model.Operator, error) {
	return r.getOne(ctx, `SELECT id, login, password_hash, created_at FROM operators WHERE login=$1`, login)
}

func (r *operatorRepository) GetByID(ctx context.Context, id int64) (*model.Operator, error) {
	return r.getOne(ctx, `SELECT id, login, password_hash, created_at FROM operators WHERE id=$1`, id)
}

func (r *operatorRepository) getOne(ctx context.Context, query string, key any) (*model.Operator, error) {
	var op model.Operator
	if err := r.q.QueryRow(ctx, query, key).Scan(&op.ID, &op.Login, &op.PasswordHash, &op.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &op, nil
}
