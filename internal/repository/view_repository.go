package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"viewcounter/internal/domain"
	apperrors "viewcounter/pkg/errors"
	"viewcounter/pkg/redis"
)

// batchReadSize caps the number of commands sent in one pipeline.
const batchReadSize = 500

// viewRepository stores counter records in Redis
type viewRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewViewRepository creates a new view repository. A non-positive ttl falls
// back to DefaultViewTTL.
func NewViewRepository(client *redis.Client, ttl time.Duration) ViewRepository {
	if ttl <= 0 {
		ttl = DefaultViewTTL
	}
	return &viewRepository{
		redis: client,
		ttl:   ttl,
	}
}

func (r *viewRepository) key(slug string) string {
	return r.redis.KeyBuilder.KeyViews(slug)
}

// Get returns the current count for slug, 0 when no record exists.
func (r *viewRepository) Get(ctx context.Context, slug string) (int64, error) {
	rec, err := r.loadRecord(ctx, r.key(slug))
	if err != nil {
		return 0, err
	}
	return rec.Views, nil
}

// IncrementAnonymous adds one view unconditionally and refreshes the retention window.
func (r *viewRepository) IncrementAnonymous(ctx context.Context, slug string) (int64, error) {
	key := r.key(slug)
	if err := r.ensureStructured(ctx, key); err != nil {
		return 0, err
	}
	return r.incrementAndRefresh(ctx, key)
}

// IncrementWithSession adds one view the first time token is seen for slug.
// HSETNX on the session marker, run in one script with EXPIRE and HINCRBY, is
// the only decision point: of any number of concurrent callers with the same
// token exactly one gets incremented=true.
func (r *viewRepository) IncrementWithSession(ctx context.Context, slug, token string) (int64, bool, error) {
	if token == "" {
		return 0, false, apperrors.NewValidationError("session token is required", nil)
	}

	key := r.key(slug)
	if err := r.ensureStructured(ctx, key); err != nil {
		return 0, false, err
	}

	res, err := r.redis.RunScript(ctx, sessionIncrementScript, []string{key},
		sessionField(token), sessionMarkerValue, FieldViews, r.ttlSeconds())
	if err != nil {
		return 0, false, apperrors.NewStoreUnavailableError("failed to increment views", err)
	}

	added, views, ok := parseSessionResult(res)
	if !ok {
		return 0, false, apperrors.NewInternalError("unexpected session script reply", nil)
	}
	if !added {
		views, err := r.Get(ctx, slug)
		return views, false, err
	}
	return views, true, nil
}

// parseSessionResult decodes the {added, views} reply of sessionIncrementScript.
func parseSessionResult(res interface{}) (added bool, views int64, ok bool) {
	reply, isSlice := res.([]interface{})
	if !isSlice || len(reply) != 2 {
		return false, 0, false
	}
	flag, ok1 := reply[0].(int64)
	count, ok2 := reply[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, false
	}
	return flag == 1, count, true
}

// ttlSeconds is the retention window for EXPIRE inside scripts. EXPIRE 0
// deletes the key, so it never goes below one second.
func (r *viewRepository) ttlSeconds() int64 {
	if secs := int64(r.ttl / time.Second); secs > 0 {
		return secs
	}
	return 1
}

// incrementAndRefresh runs HINCRBY and EXPIRE in one MULTI/EXEC.
func (r *viewRepository) incrementAndRefresh(ctx context.Context, key string) (int64, error) {
	pipe := r.redis.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, FieldViews, 1)
	pipe.Expire(ctx, key, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperrors.NewStoreUnavailableError("failed to increment views", err)
	}
	return incr.Val(), nil
}

// GetMultiple reads the counts of slugs in batch. Every slug is present in the
// result; entries that could not be read are 0 and reported through the error.
func (r *viewRepository) GetMultiple(ctx context.Context, slugs []string) (map[string]int64, error) {
	keys := make([]string, len(slugs))
	for i, slug := range slugs {
		keys[i] = r.key(slug)
	}

	counts, failed, firstErr := r.readViews(ctx, keys)

	result := make(map[string]int64, len(slugs))
	for i, slug := range slugs {
		result[slug] = counts[i]
	}

	if failed > 0 {
		return result, apperrors.NewStoreUnavailableError("failed to read some counters", firstErr)
	}
	return result, nil
}

// ListCounts enumerates every counter record with SCAN and reads its count.
func (r *viewRepository) ListCounts(ctx context.Context) ([]domain.PostViews, error) {
	keys, err := r.redis.ScanKeys(ctx, r.redis.KeyBuilder.ViewsPattern())
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("failed to enumerate counters", err)
	}

	slugs := make([]string, 0, len(keys))
	recordKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		slug, ok := r.redis.KeyBuilder.SlugFromViewsKey(key)
		if !ok {
			continue
		}
		slugs = append(slugs, slug)
		recordKeys = append(recordKeys, key)
	}

	counts, failed, firstErr := r.readViews(ctx, recordKeys)
	if failed > 0 && failed == len(recordKeys) {
		return nil, apperrors.NewStoreUnavailableError("failed to read counters", firstErr)
	}

	out := make([]domain.PostViews, len(slugs))
	for i, slug := range slugs {
		out[i] = domain.PostViews{Slug: slug, Views: counts[i]}
	}
	return out, nil
}

// TotalViews sums the counts of every record.
func (r *viewRepository) TotalViews(ctx context.Context) (int64, error) {
	all, err := r.ListCounts(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, pv := range all {
		total += pv.Views
	}
	return total, nil
}

// PopularPosts returns at most limit records ordered by views descending.
// Ties keep no particular order.
func (r *viewRepository) PopularPosts(ctx context.Context, limit int) ([]domain.PostViews, error) {
	if limit <= 0 {
		return []domain.PostViews{}, nil
	}

	all, err := r.ListCounts(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Views > all[j].Views
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MigrateLegacy converts the record of slug when it is still a legacy scalar
// and returns the recovered count.
func (r *viewRepository) MigrateLegacy(ctx context.Context, slug string) (int64, error) {
	return r.migrate(ctx, r.key(slug))
}

// MigrateAllLegacy sweeps every counter record and converts the legacy ones.
// It returns how many records were converted.
func (r *viewRepository) MigrateAllLegacy(ctx context.Context) (int, error) {
	keys, err := r.redis.ScanKeys(ctx, r.redis.KeyBuilder.ViewsPattern())
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("failed to enumerate counters", err)
	}

	migrated := 0
	for start := 0; start < len(keys); start += batchReadSize {
		end := min(start+batchReadSize, len(keys))
		batch := keys[start:end]

		pipe := r.redis.Pipeline()
		types := make([]*goredis.StatusCmd, len(batch))
		for i, key := range batch {
			types[i] = pipe.Type(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return migrated, apperrors.NewStoreUnavailableError("failed to inspect counters", err)
		}

		for i, cmd := range types {
			if ClassifyShape(cmd.Val()) != ShapeLegacy {
				continue
			}
			if _, err := r.migrate(ctx, batch[i]); err != nil {
				return migrated, err
			}
			migrated++
		}
	}
	return migrated, nil
}

// readViews reads the views field of each key with pipelined HGETs. Keys that
// still hold a legacy scalar answer WRONGTYPE and are re-read with GET.
// Missing keys count as 0. failed is the number of entries lost to store errors.
func (r *viewRepository) readViews(ctx context.Context, keys []string) (counts []int64, failed int, firstErr error) {
	counts = make([]int64, len(keys))

	for start := 0; start < len(keys); start += batchReadSize {
		end := min(start+batchReadSize, len(keys))

		pipe := r.redis.Pipeline()
		cmds := make([]*goredis.StringCmd, 0, end-start)
		for _, key := range keys[start:end] {
			cmds = append(cmds, pipe.HGet(ctx, key, FieldViews))
		}
		// Exec reports the first failed command; each one is inspected below.
		_, _ = pipe.Exec(ctx)

		var legacy []int
		for i, cmd := range cmds {
			raw, err := cmd.Result()
			switch {
			case err == nil:
				counts[start+i] = parseCount(raw)
			case errors.Is(err, goredis.Nil):
			case redis.IsWrongType(err):
				legacy = append(legacy, start+i)
			default:
				failed++
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		if len(legacy) == 0 {
			continue
		}

		pipe = r.redis.Pipeline()
		gets := make([]*goredis.StringCmd, len(legacy))
		for i, idx := range legacy {
			gets[i] = pipe.Get(ctx, keys[idx])
		}
		_, _ = pipe.Exec(ctx)

		for i, cmd := range gets {
			raw, err := cmd.Result()
			switch {
			case err == nil:
				counts[legacy[i]] = parseCount(raw)
			case errors.Is(err, goredis.Nil), redis.IsWrongType(err):
				// gone, or neither a hash nor a scalar
			default:
				failed++
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return counts, failed, firstErr
}
