package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ppiankov/jobsift/internal/cache"
	"github.com/ppiankov/jobsift/internal/model"
)

// Store persists checkpoints keyed by job ID. Save and Load are atomic per call.
type Store interface {
	Save(ctx context.Context, jobID string, state *model.Checkpoint) error
	Load(ctx context.Context, jobID string) (*model.Checkpoint, bool, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

const keyPrefix = "checkpoint:"

// CacheStore keeps checkpoints as JSON blobs in a cache layer
type CacheStore struct {
	cache cache.Cache
}

// NewCacheStore wraps any cache layer as a checkpoint store
func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{cache: c}
}

// NewMemoryStore creates an in-process store
func NewMemoryStore() *CacheStore {
	return NewCacheStore(cache.NewMemoryCache(cache.NoExpiration, 0))
}

// NewFileStore creates a store that writes one JSON file per job under dir
func NewFileStore(dir string) *CacheStore {
	return NewCacheStore(cache.NewLayeredCache(
		cache.NewMemoryCache(cache.NoExpiration, 0),
		cache.NewDiskCache(filepath.Clean(dir), cache.NoExpiration),
	))
}

// Save writes the checkpoint for a job
func (s *CacheStore) Save(ctx context.Context, jobID string, state *model.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := s.cache.Set(keyPrefix+jobID, data, cache.NoExpiration); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", jobID, err)
	}
	return nil
}

// Load reads the checkpoint for a job; found is false when none exists
func (s *CacheStore) Load(ctx context.Context, jobID string) (*model.Checkpoint, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, ok := s.cache.Get(keyPrefix + jobID)
	if !ok {
		return nil, false, nil
	}
	state, err := Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", jobID, err)
	}
	return state, true, nil
}

// List returns the IDs of all stored jobs
func (s *CacheStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := s.cache.Keys()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var ids []string
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, keyPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close releases nothing; cache layers hold no handles
func (s *CacheStore) Close() error {
	return nil
}

// Encode serializes a checkpoint with the current layout version
func Encode(state *model.Checkpoint) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("encode checkpoint: nil state")
	}
	cp := *state
	cp.Version = model.CheckpointVersion
	data, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// Decode parses a checkpoint and rejects unknown layout versions
func Decode(data []byte) (*model.Checkpoint, error) {
	var state model.Checkpoint
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if state.Version != model.CheckpointVersion {
		return nil, fmt.Errorf("decode checkpoint: unsupported version %d", state.Version)
	}
	return &state, nil
}
