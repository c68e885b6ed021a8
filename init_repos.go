package main

import (
	"database/sql"

	"github.com/akinalp/chatsync/repository"
)

// Repositories, repository instance'larını tutan container struct.
type Repositories struct {
	Session repository.SessionRepository
}

// initRepositories, SQLite implementasyonlarını oluşturur.
func initRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Session: repository.NewSQLiteSessionRepo(db),
	}
}
