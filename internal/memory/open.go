package memory

import (
	"fmt"
	"log/slog"

	"personabot/internal/domain"
)

// Open returns the store selected by driver: "sqlite" (default) or "memory".
func Open(driver, dbPath string, logger *slog.Logger) (domain.MemoryStore, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(dbPath, logger)
	case "memory":
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown memory driver %q", driver)
	}
}
