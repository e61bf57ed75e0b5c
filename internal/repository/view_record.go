package repository

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "viewcounter/pkg/errors"
)

// Counter record layout
const (
	// FieldViews holds the count inside a structured record.
	FieldViews = "views"

	// sessionFieldPrefix marks a session already counted for the record.
	sessionFieldPrefix = "session:"
	sessionMarkerValue = "1"

	// DefaultViewTTL is the rolling retention window refreshed by every increment.
	DefaultViewTTL = 24 * time.Hour
)

// Shape is the representation a counter record currently has in the store.
type Shape int

const (
	// ShapeAbsent means no record exists.
	ShapeAbsent Shape = iota
	// ShapeLegacy is a bare integer stored as a string value.
	ShapeLegacy
	// ShapeStructured is a hash with a views field and session markers.
	ShapeStructured
	// ShapeUnknown is any other stored type.
	ShapeUnknown
)

func (s Shape) String() string {
	switch s {
	case ShapeAbsent:
		return "absent"
	case ShapeLegacy:
		return "legacy"
	case ShapeStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// ClassifyShape maps a TYPE reply to a Shape.
func ClassifyShape(redisType string) Shape {
	switch redisType {
	case "none", "":
		return ShapeAbsent
	case "string":
		return ShapeLegacy
	case "hash":
		return ShapeStructured
	default:
		return ShapeUnknown
	}
}

// Record is a counter record resolved once per operation.
type Record struct {
	Shape Shape
	// Views is the scalar for ShapeLegacy and the views field for ShapeStructured.
	Views int64
}

// migrateScript converts a legacy scalar into a structured record in one
// server-side step. It returns the recovered count, or 0 when the key was
// not a legacy scalar. Plain digit strings are written back verbatim since
// Lua number formatting switches to exponent notation past 14 digits.
var migrateScript = goredis.NewScript(`
if redis.call('TYPE', KEYS[1]).ok ~= 'string' then
	return 0
end
local raw = redis.call('GET', KEYS[1])
local views = math.floor(tonumber(raw) or 0)
redis.call('DEL', KEYS[1])
if views > 0 then
	local stored = string.match(raw, '^%s*0*([1-9]%d*)%s*$') or string.format('%d', views)
	redis.call('HSET', KEYS[1], ARGV[1], stored)
	return views
end
return 0
`)

// sessionIncrementScript sets the session marker and, when it was new,
// refreshes expiry and increments. Expiry is applied before the increment
// so a record never outlives the retention window even if HINCRBY fails.
// Returns {added, views}.
var sessionIncrementScript = goredis.NewScript(`
local added = redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2])
if added == 0 then
	return {0, 0}
end
redis.call('EXPIRE', KEYS[1], ARGV[4])
local views = redis.call('HINCRBY', KEYS[1], ARGV[3], 1)
return {1, views}
`)

// sessionField builds the marker field name for a session token.
func sessionField(token string) string {
	return sessionFieldPrefix + token
}

// parseCount reads a stored count. Non-numeric values count as zero.
func parseCount(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

// determineShape inspects the stored type of key.
func (r *viewRepository) determineShape(ctx context.Context, key string) (Shape, string, error) {
	t, err := r.redis.Type(ctx, key)
	if err != nil {
		return ShapeAbsent, "", apperrors.NewStoreUnavailableError("failed to inspect counter record", err)
	}
	return ClassifyShape(t), t, nil
}

// loadRecord resolves the shape of key and reads its count accordingly.
// A legacy record is read in place; reads never migrate.
func (r *viewRepository) loadRecord(ctx context.Context, key string) (Record, error) {
	shape, storedType, err := r.determineShape(ctx, key)
	if err != nil {
		return Record{}, err
	}

	var raw string
	switch shape {
	case ShapeAbsent:
		return Record{Shape: ShapeAbsent}, nil
	case ShapeLegacy:
		raw, err = r.redis.Get(ctx, key)
	case ShapeStructured:
		raw, err = r.redis.HGet(ctx, key, FieldViews)
	default:
		return Record{Shape: ShapeUnknown}, apperrors.NewShapeMismatchError(key, storedType)
	}

	switch {
	case errors.Is(err, goredis.Nil):
		// expired or emptied between TYPE and the read
		return Record{Shape: shape}, nil
	case err != nil:
		return Record{Shape: shape}, apperrors.NewStoreUnavailableError("failed to read counter record", err)
	}
	return Record{Shape: shape, Views: parseCount(raw)}, nil
}

// migrate converts a legacy record into a structured one and returns the
// recovered count. Absent and structured records are left untouched.
// Safe to run concurrently: the conversion executes atomically on the server,
// so a second caller finds a hash and does nothing.
func (r *viewRepository) migrate(ctx context.Context, key string) (int64, error) {
	res, err := r.redis.RunScript(ctx, migrateScript, []string{key}, FieldViews)
	if err != nil {
		return 0, apperrors.NewStoreUnavailableError("failed to migrate legacy counter", err)
	}
	n, _ := res.(int64)
	return n, nil
}

// ensureStructured migrates key when it still holds a legacy scalar.
func (r *viewRepository) ensureStructured(ctx context.Context, key string) error {
	shape, storedType, err := r.determineShape(ctx, key)
	if err != nil {
		return err
	}

	switch shape {
	case ShapeLegacy:
		_, err = r.migrate(ctx, key)
		return err
	case ShapeUnknown:
		return apperrors.NewShapeMismatchError(key, storedType)
	default:
		return nil
	}
}
