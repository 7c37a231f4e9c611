package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/logging"
)

// SQLiteStore 基于本地 SQLite 文件的会话存储，跨进程重启保留登录状态
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore 打开（必要时创建）本地会话库
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session database: %w", err)
	}
	return &SQLiteStore{db: db, logger: logging.OrNop(logger)}, nil
}

func (s *SQLiteStore) Load() (*identity.Identity, bool) {
	rows, err := s.db.Query(`SELECT key, value FROM local_storage WHERE key IN (?, ?)`, KeyToken, KeyUser)
	if err != nil {
		s.logger.Warn("read session failed", zap.Error(err))
		return nil, false
	}
	defer rows.Close()

	values := make(map[string]string, 2)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			s.logger.Warn("scan session entry failed", zap.Error(err))
			return nil, false
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("read session failed", zap.Error(err))
		return nil, false
	}
	id, ok := decode(values[KeyToken], values[KeyUser])
	if !ok && len(values) > 0 {
		s.logger.Debug("ignoring incomplete or malformed session", zap.Int("entries", len(values)))
	}
	return id, ok
}

func (s *SQLiteStore) Save(id *identity.Identity) error {
	token, user, err := encode(id)
	if err != nil {
		return err
	}
	return s.inTx(func(tx *sql.Tx) error {
		const upsert = `INSERT INTO local_storage (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`
		if _, err := tx.Exec(upsert, KeyToken, token); err != nil {
			return err
		}
		_, err := tx.Exec(upsert, KeyUser, user)
		return err
	})
}

func (s *SQLiteStore) Clear() error {
	return s.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM local_storage WHERE key IN (?, ?)`, KeyToken, KeyUser)
		return err
	})
}

// Put 直接写入原始条目，用于模拟被篡改或残缺的本地数据
func (s *SQLiteStore) Put(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO local_storage (key, value) VALUES (?, ?)`, key, value)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write session: %w", err)
	}
	return tx.Commit()
}
