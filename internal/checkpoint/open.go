package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/jobsift/internal/model"
)

// Open builds the store selected by configuration
func Open(ctx context.Context, cfg model.CheckpointConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		return NewFileStore(cfg.Dir), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q (want file, sqlite or memory)", cfg.Backend)
	}
}
