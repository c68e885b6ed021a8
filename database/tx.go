package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TxQuerier, *sql.DB ve *sql.Tx'in ortak sorgu yüzeyi.
// Repository yardımcıları bunu alır; aynı kod transaction içinde de dışında da çalışır.
type TxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx, fn'i tek transaction'da çalıştırır. fn nil dönerse commit edilir;
// hata dönerse veya panic atarsa rollback yapılır ve hata/panic aynen yukarı çıkar.
//
// Kullanıldığı yerler: migration adımları ve kayıtlı login'in değiştirilmesi
// (eski satırı silip yenisini yazmak tek adımdır).
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
