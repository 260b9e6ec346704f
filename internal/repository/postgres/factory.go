package postgres

import (
	repo "github.com/baharkarakas/user-accounts/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	Users repo.Users
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users: &usersRepo{pool},
	}
}
