// Package checkpoint persists which posts a run has fully processed so that
// later runs can skip them.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// state is the durable record: every processed post ID plus the time the
// set last grew.
type state struct {
	ProcessedPosts []string   `json:"processed_posts"`
	LastRun        *time.Time `json:"last_run"`
}

// Store tracks processed post IDs in memory and mirrors every change to
// durable storage: a local JSON file, or a GCS object when a bucket is
// configured. A missing or malformed record is never fatal; the store just
// starts empty.
//
// The store has a single writer per run, so access is not synchronized.
type Store struct {
	path   string
	client *gcs.Client
	bucket string
	object string
	logger *slog.Logger

	processed map[string]struct{}
	order     []string
	lastRun   *time.Time

	now func() time.Time
}

// NewFile opens a store backed by a local JSON file.
func NewFile(path string, logger *slog.Logger) *Store {
	s := &Store{
		path:      path,
		logger:    logger,
		processed: make(map[string]struct{}),
		now:       time.Now,
	}
	s.load(context.Background())
	return s
}

// NewBucket opens a store backed by a GCS object.
func NewBucket(ctx context.Context, client *gcs.Client, bucket, object string, logger *slog.Logger) *Store {
	s := &Store{
		client:    client,
		bucket:    bucket,
		object:    object,
		logger:    logger,
		processed: make(map[string]struct{}),
		now:       time.Now,
	}
	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	data, err := s.read(ctx)
	if err != nil {
		if !isNotFound(err) {
			s.logger.Warn("Could not load checkpoint, starting fresh", "error", err)
		}
		return
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("Checkpoint is malformed, starting fresh", "error", err)
		return
	}

	for _, id := range st.ProcessedPosts {
		if _, ok := s.processed[id]; ok {
			continue
		}
		s.processed[id] = struct{}{}
		s.order = append(s.order, id)
	}
	s.lastRun = st.LastRun
	s.logger.Info("Checkpoint loaded", "processed_posts", len(s.order))
}

// IsProcessed reports whether a post was completed by this or a prior run.
func (s *Store) IsProcessed(id string) bool {
	_, ok := s.processed[id]
	return ok
}

// LastRun returns the time the processed set last grew, or nil for a fresh
// store.
func (s *Store) LastRun() *time.Time { return s.lastRun }

// MarkProcessed adds a post ID to the processed set and persists the full
// state. Marking the same ID twice is a no-op for the set but still bumps
// the last-run timestamp.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	if _, ok := s.processed[id]; !ok {
		s.processed[id] = struct{}{}
		s.order = append(s.order, id)
	}
	t := s.now()
	s.lastRun = &t

	data, err := json.MarshalIndent(state{ProcessedPosts: s.order, LastRun: s.lastRun}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.write(ctx, data)
}

// Clear resets the in-memory state and removes the durable record.
func (s *Store) Clear(ctx context.Context) error {
	s.processed = make(map[string]struct{})
	s.order = nil
	s.lastRun = nil
	return s.remove(ctx)
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.client == nil {
		return os.ReadFile(s.path)
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, gcs.ErrObjectNotExist) {
					return retry.Unrecoverable(openErr)
				}
				return fmt.Errorf("open checkpoint reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close checkpoint reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read checkpoint: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying checkpoint read after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, data []byte) error {
	if s.client == nil {
		if err := os.WriteFile(s.path, data, 0o600); err != nil {
			return fmt.Errorf("write checkpoint file: %w", err)
		}
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close checkpoint writer after error", "error", closeErr)
				}
				return fmt.Errorf("write checkpoint object: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close checkpoint writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying checkpoint write after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint after retries: %w", err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context) error {
	if s.client == nil {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove checkpoint file: %w", err)
		}
		return nil
	}

	err := retry.Do(
		func() error {
			if deleteErr := s.client.Bucket(s.bucket).Object(s.object).Delete(ctx); deleteErr != nil {
				if errors.Is(deleteErr, gcs.ErrObjectNotExist) {
					return nil
				}
				return fmt.Errorf("delete checkpoint object: %w", deleteErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying checkpoint delete after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("clear checkpoint after retries: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, gcs.ErrObjectNotExist)
}
