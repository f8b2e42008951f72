package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"personabot/internal/domain"
	"personabot/internal/metrics"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 20

// SQLiteStore implements domain.MemoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and migrates it.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		db.Close()
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}
	logger.Info("memory store ready", "path", dbPath, "schema_version", version)

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// sqliteDSN enables WAL and a busy timeout through modernc's _pragma parameters.
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) Insert(ctx context.Context, m domain.Memory) (domain.Memory, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, agent_id, room_id, type, generator, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.AgentID, m.RoomID, m.Type, string(m.Generator), m.Content, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	metrics.MemoriesWritten.Inc()
	return m, nil
}

// QueryRecent returns the last limit memories of a room, oldest first.
// Records sharing a timestamp keep insertion order.
func (s *SQLiteStore) QueryRecent(ctx context.Context, roomID string, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, agent_id, room_id, type, generator, content, created_at
		 FROM memories WHERE room_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`, roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var mems []domain.Memory
	for rows.Next() {
		var m domain.Memory
		var generator string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.AgentID, &m.RoomID, &m.Type, &generator, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Generator = domain.Generator(generator)
		m.CreatedAt = time.Unix(0, createdAt)
		mems = append(mems, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(mems)-1; i < j; i, j = i+1, j-1 {
		mems[i], mems[j] = mems[j], mems[i]
	}
	return mems, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
