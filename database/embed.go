package database

import "embed"

// EmbeddedMigrations, migrations/ dizinindeki SQL dosyaları; binary ile birlikte gelir.
// Kullanım: fs.Sub(EmbeddedMigrations, "migrations").
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
