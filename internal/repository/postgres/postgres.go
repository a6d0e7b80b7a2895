package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

type accountRepository struct {
	BaseRepository
}

type credentialRepository struct {
	BaseRepository
}

type visitRepository struct {
	BaseRepository
}

type reviewRepository struct {
	BaseRepository
}

func NewAccountRepository(db *sqlx.DB) repository.AccountRepository {
	return &accountRepository{NewBaseRepository(db)}
}

func NewCredentialRepository(db *sqlx.DB) repository.CredentialRepository {
	return &credentialRepository{NewBaseRepository(db)}
}

func NewVisitRepository(db *sqlx.DB) repository.VisitRepository {
	return &visitRepository{NewBaseRepository(db)}
}

func NewReviewRepository(db *sqlx.DB) repository.ReviewRepository {
	return &reviewRepository{NewBaseRepository(db)}
}
