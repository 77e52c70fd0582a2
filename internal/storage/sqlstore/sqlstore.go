package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type dialect struct {
	name       string
	getQuery   string
	setQuery   string
	delQuery   string
	migrations string
}

var (
	postgresDialect = dialect{
		name:     "postgres",
		getQuery: `SELECT value FROM cart_slots WHERE slot_key = $1`,
		setQuery: `INSERT INTO cart_slots (slot_key, value, updated_at) VALUES ($1, $2, NOW())
		           ON CONFLICT (slot_key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		delQuery:   `DELETE FROM cart_slots WHERE slot_key = $1`,
		migrations: "migrations/postgres",
	}
	sqliteDialect = dialect{
		name:     "sqlite",
		getQuery: `SELECT value FROM cart_slots WHERE slot_key = ?`,
		setQuery: `INSERT INTO cart_slots (slot_key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		           ON CONFLICT (slot_key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		delQuery:   `DELETE FROM cart_slots WHERE slot_key = ?`,
		migrations: "migrations/sqlite",
	}
)

// Store keeps cart slots in a SQL table, either on Postgres or SQLite.
type Store struct {
	db      *sql.DB
	dialect dialect
}

func NewPostgres(cred *Credentials) (*Store, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Store{db: db, dialect: postgresDialect}, nil
}

// NewSQLite opens the database file at path (":memory:" works for tests).
func NewSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)
	return &Store{db: db, dialect: sqliteDialect}, nil
}

func (s *Store) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch s.dialect.name {
	case "postgres":
		driver, err = postgres.WithInstance(s.db, &postgres.Config{
			MigrationsTable: "cart_schema_migrations",
		})
	default:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, s.dialect.migrations)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query slot: %w", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.setQuery, key, value); err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.delQuery, key); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
