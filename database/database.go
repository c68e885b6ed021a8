// Package database, CLI'ın yerel SQLite dosyasını ve şema versiyonlarını yönetir.
//
// Dosyada sadece kayıtlı login ve son seçilen konuşma durur. Mesaj cache'i
// bellekte yaşar; diske hiç yazılmaz. Token içerdiği için dosya sadece
// sahibi tarafından okunabilir (0600).
//
// SQLite driver import edildiğinde database/sql'e kendini kaydeder.
// "blank import" (_ "modernc.org/sqlite") bu yüzden kullanılır.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver, CGO gerekmez
)

// DB, veritabanı bağlantısını saran struct.
type DB struct {
	Conn *sql.DB
	log  *zap.Logger
}

// migration, "NNN_isim.sql" dosyasından okunan tek bir şema adımı.
type migration struct {
	version int
	name    string
	sql     string
}

// New, SQLite dosyasını açar (yoksa oluşturur) ve eksik migration'ları uygular.
//
// dbPath: SQLite dosya yolu (ör: "./data/chatsync.db")
// migrationsFS: "NNN_isim.sql" dosyalarını içeren fs.FS (embed.FS veya fstest.MapFS)
func New(dbPath string, migrationsFS fs.FS, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL → aynı anda çalışan iki CLI komutu (tail + send) birbirini kilitlemez.
	// busy_timeout → kısa süreli yazma kilidinde hemen SQLITE_BUSY dönmez.
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Ping dosyayı oluşturur; izinler hemen ardından daraltılır.
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := os.Chmod(dbPath, 0o600); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
	}

	db := &DB{Conn: conn, log: log}
	if err := db.migrate(context.Background(), migrations); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug("database ready", zap.String("path", dbPath))
	return db, nil
}

// Close, veritabanı bağlantısını kapatır.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// SchemaVersion, dosyaya en son uygulanan migration'ın numarası.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.Conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// migrate, user_version'dan büyük numaralı migration'ları sırayla uygular.
//
// Her migration kendi transaction'ında çalışır ve user_version aynı
// transaction içinde güncellenir. SQLite'ta DDL de transactional olduğu için
// yarıda kesilen bir migration iz bırakmaz; sonraki açılışta baştan çalışır.
//
// Dosya bu binary'nin bildiğinden yeni bir şemadaysa (daha yeni bir sürüm
// yazmışsa) açılmaz; eski kod bilmediği kolonları bozabilir.
func (db *DB) migrate(ctx context.Context, migrations []migration) error {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	latest := 0
	if len(migrations) > 0 {
		latest = migrations[len(migrations)-1].version
	}
	if current > latest {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, latest)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		err := WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			// PRAGMA parametre almaz; version loadMigrations'ta int'e parse edildi.
			_, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(m.version))
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}

		db.log.Info("migration applied", zap.String("file", m.name), zap.Int("version", m.version))
	}
	return nil
}

// loadMigrations, .sql dosyalarını okur ve numaralarına göre sıralar.
//
//	001_init.sql     → version 1
//	002_x.sql        → version 2
//	init.sql         → hata (numara yok)
//	002_a + 002_b    → hata (aynı numara)
//
// .sql olmayan dosyalar yok sayılır.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive number", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, name, version)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		out = append(out, migration{version: version, name: name, sql: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
