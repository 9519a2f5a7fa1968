package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultConnTimeout = 5 * time.Second

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolConfig задаёт параметры пула соединений database/sql.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig рассчитан на проекцию: каждая запись держит соединение
// на одну короткую транзакцию, чтение страницы — на одну read-only транзакцию.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
	}
}

// Option настраивает Store при открытии.
type Option func(*Store)

// WithLogger задаёт логгер хранилища и мигратора.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.WithField("component", "postgres")
		}
	}
}

// WithPool переопределяет параметры пула; нулевые поля остаются по умолчанию.
func WithPool(pool PoolConfig) Option {
	return func(s *Store) {
		if pool.MaxOpenConns > 0 {
			s.pool.MaxOpenConns = pool.MaxOpenConns
		}
		if pool.MaxIdleConns > 0 {
			s.pool.MaxIdleConns = pool.MaxIdleConns
		}
		if pool.ConnMaxLifetime > 0 {
			s.pool.ConnMaxLifetime = pool.ConnMaxLifetime
		}
		if pool.ConnMaxIdleTime > 0 {
			s.pool.ConnMaxIdleTime = pool.ConnMaxIdleTime
		}
	}
}

// Store владеет пулом соединений с базой заказов.
type Store struct {
	db     *sql.DB
	logger *log.Entry
	pool   PoolConfig
}

func newStore(opts ...Option) *Store {
	s := &Store{
		logger: log.WithField("component", "postgres"),
		pool:   DefaultPoolConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool.MaxIdleConns > s.pool.MaxOpenConns {
		s.pool.MaxIdleConns = s.pool.MaxOpenConns
	}
	return s
}

// Open открывает пул, применяет его настройки и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := newStore(opts...)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(s.pool.MaxOpenConns)
	db.SetMaxIdleConns(s.pool.MaxIdleConns)
	db.SetConnMaxLifetime(s.pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(s.pool.ConnMaxIdleTime)
	s.db = db

	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"max_open_conns": s.pool.MaxOpenConns,
		"max_idle_conns": s.pool.MaxIdleConns,
	}).Debug("postgres pool opened")
	return s, nil
}

// DB возвращает пул для репозиториев пакета и тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет соединение; используется health-чекером хранилища.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все недостающие миграции при старте сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.MigrateUp(ctx, 0); err != nil {
		return err
	}
	state, err := s.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	s.logger.WithField("schema_version", state.Version).Info("postgres schema is up to date")
	return nil
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
