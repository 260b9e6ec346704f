// internal/repository/postgres/users_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/user-accounts/internal/models"
	"github.com/baharkarakas/user-accounts/internal/repository"
)

type usersRepo struct{ pool *pgxpool.Pool }

func NewUsers(pool *pgxpool.Pool) repository.Users {
	return &usersRepo{pool: pool}
}

const userColumns = `id, first_name, last_name, email, password, COALESCE(avatar, ''), date_created, date_updated`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Avatar, &u.DateCreated, &u.DateUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, repository.ErrNotFound
	}
	return u, err
}

func (r *usersRepo) FindByID(ctx context.Context, id int64) (models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *usersRepo) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1 ORDER BY id LIMIT 1`, email))
}

func (r *usersRepo) FindPage(ctx context.Context, limit, offset int) ([]models.User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+`
		   FROM users
		  ORDER BY id
		  LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]models.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *usersRepo) Save(ctx context.Context, u *models.User) error {
	if u.ID == 0 {
		return r.insert(ctx, u)
	}
	return r.update(ctx, u)
}

func (r *usersRepo) insert(ctx context.Context, u *models.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users(first_name, last_name, email, password, avatar, date_created, date_updated)
		 VALUES($1,$2,$3,$4,NULLIF($5,''),$6,$7)
		 RETURNING id`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Avatar, u.DateCreated, u.DateUpdated,
	).Scan(&u.ID)
	return mapWriteErr(err)
}

func (r *usersRepo) update(ctx context.Context, u *models.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		    SET first_name=$2, last_name=$3, email=$4, password=$5,
		        avatar=NULLIF($6,''), date_updated=$7
		  WHERE id=$1`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Avatar, u.DateUpdated,
	)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.StringDataRightTruncationDataException {
		return repository.ErrValueTooLong
	}
	return err
}
