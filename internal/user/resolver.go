package user

import (
	"context"
	"errors"
	"fmt"

	"coedit/internal/cache"
	"coedit/internal/logging"
	"coedit/internal/storage"

	"go.uber.org/zap"
)

// Resolver turns user ids into summaries, going through the cache first.
type Resolver struct {
	box    Box
	cache  cache.Cache
	logger *logging.Logger
}

func NewResolver(box Box, c cache.Cache, logger *logging.Logger) *Resolver {
	return &Resolver{box: box, cache: c, logger: logger}
}

func cacheKey(id string) string {
	return "user:summary:" + id
}

// Summary returns the summary for id. A user that no longer exists resolves to
// a summary carrying only the id.
func (r *Resolver) Summary(ctx context.Context, id string) (Summary, error) {
	var s Summary
	if ok, err := r.cache.Get(ctx, cacheKey(id), &s); err != nil {
		r.logger.WithRequestID(ctx).Warn("summary cache read failed",
			zap.String("user_id", id), zap.Error(err))
	} else if ok {
		return s, nil
	}

	u, err := r.box.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Summary{ID: id}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("resolving user %s: %w", id, err)
	}

	s = u.Summary()
	if err := r.cache.Set(ctx, cacheKey(id), s); err != nil {
		r.logger.WithRequestID(ctx).Warn("summary cache write failed",
			zap.String("user_id", id), zap.Error(err))
	}
	return s, nil
}

// Summaries resolves a batch of ids, each distinct id once.
func (r *Resolver) Summaries(ctx context.Context, ids []string) (map[string]Summary, error) {
	out := make(map[string]Summary, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		s, err := r.Summary(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}
