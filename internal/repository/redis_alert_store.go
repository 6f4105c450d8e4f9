package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	domainrepo "github.com/Zentex1337/crypto-tracker-api/internal/domain/repository"
)

const (
	alertKeyPrefix  = "alert:"
	symbolIdxPrefix = "alerts:symbol:"
	ownerIdxPrefix  = "alerts:owner:"
)

// markTriggeredScript flips active alerts to triggered in one atomic pass.
// Alerts that were deactivated or deleted since evaluation are skipped.
// Returns the ids that actually transitioned.
var markTriggeredScript = redis.NewScript(`
local confirmed = {}
for i, key in ipairs(KEYS) do
  if redis.call('EXISTS', key) == 1 then
    local vals = redis.call('HMGET', key, 'active', 'triggered', 'id', 'symbol')
    if vals[1] == '1' and vals[2] == '0' then
      redis.call('HSET', key, 'active', '0', 'triggered', '1', 'triggered_at', ARGV[1])
      redis.call('SREM', 'alerts:symbol:' .. vals[4], vals[3])
      confirmed[#confirmed+1] = vals[3]
    end
  end
end
return confirmed
`)

// RedisAlertStore implements AlertStore on Redis. Each alert lives in a
// hash under alert:{id}; alerts:symbol:{sym} indexes active alerts by
// symbol and alerts:owner:{uid} indexes all alerts by owner.
type RedisAlertStore struct {
	rdb *redis.Client
}

// NewRedisAlertStore creates a Redis-backed alert store.
func NewRedisAlertStore(rdb *redis.Client) domainrepo.AlertStore {
	return &RedisAlertStore{rdb: rdb}
}

func (s *RedisAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, alertKeyPrefix+alert.ID, alertToFields(alert))
	pipe.SAdd(ctx, ownerIdxPrefix+alert.UserID, alert.ID)
	if alert.Active && !alert.Triggered {
		pipe.SAdd(ctx, symbolIdxPrefix+alert.Symbol, alert.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) ListByOwner(ctx context.Context, owner string) ([]*models.Alert, error) {
	ids, err := s.rdb.SMembers(ctx, ownerIdxPrefix+owner).Result()
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return s.loadMany(ctx, ids)
}

func (s *RedisAlertStore) LoadActiveBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error) {
	ids, err := s.rdb.SMembers(ctx, symbolIdxPrefix+symbol).Result()
	if err != nil {
		return nil, fmt.Errorf("load alerts for %s: %w", symbol, err)
	}
	alerts, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := alerts[:0]
	for _, a := range alerts {
		if a.Active && !a.Triggered {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *RedisAlertStore) MarkTriggeredBatch(ctx context.Context, ids []string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = alertKeyPrefix + id
	}
	res, err := markTriggeredScript.Run(ctx, s.rdb, keys, at.UTC().Format(time.RFC3339Nano)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("mark triggered: %w", err)
	}
	return res, nil
}

func (s *RedisAlertStore) Deactivate(ctx context.Context, id, owner string) error {
	a, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, alertKeyPrefix+id, "active", "0")
	pipe.SRem(ctx, symbolIdxPrefix+a.Symbol, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) Delete(ctx context.Context, id, owner string) error {
	a, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, alertKeyPrefix+id)
	pipe.SRem(ctx, symbolIdxPrefix+a.Symbol, id)
	pipe.SRem(ctx, ownerIdxPrefix+owner, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) CountActive(ctx context.Context, owner string) (int, error) {
	alerts, err := s.ListByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range alerts {
		if a.Active && !a.Triggered {
			n++
		}
	}
	return n, nil
}

func (s *RedisAlertStore) loadOwned(ctx context.Context, id, owner string) (*models.Alert, error) {
	fields, err := s.rdb.HGetAll(ctx, alertKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load alert: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrAlertNotFound
	}
	a, err := alertFromFields(fields)
	if err != nil {
		return nil, err
	}
	if a.UserID != owner {
		return nil, models.ErrAlertNotFound
	}
	return a, nil
}

func (s *RedisAlertStore) loadMany(ctx context.Context, ids []string) ([]*models.Alert, error) {
	alerts := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		fields, err := s.rdb.HGetAll(ctx, alertKeyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("load alert %s: %w", id, err)
		}
		if len(fields) == 0 {
			// index entry outlived the hash, skip
			continue
		}
		a, err := alertFromFields(fields)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func alertToFields(a *models.Alert) map[string]interface{} {
	fields := map[string]interface{}{
		"id":             a.ID,
		"user_id":        a.UserID,
		"symbol":         a.Symbol,
		"condition":      string(a.Condition),
		"target_price":   strconv.FormatFloat(a.TargetPrice, 'f', -1, 64),
		"percent_change": strconv.FormatFloat(a.PercentChange, 'f', -1, 64),
		"base_price":     strconv.FormatFloat(a.BasePrice, 'f', -1, 64),
		"triggered":      boolField(a.Triggered),
		"active":         boolField(a.Active),
		"created_at":     a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.TriggeredAt != nil {
		fields["triggered_at"] = a.TriggeredAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func alertFromFields(fields map[string]string) (*models.Alert, error) {
	target, _ := strconv.ParseFloat(fields["target_price"], 64)
	pct, _ := strconv.ParseFloat(fields["percent_change"], 64)
	base, _ := strconv.ParseFloat(fields["base_price"], 64)
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	a := &models.Alert{
		ID:            fields["id"],
		UserID:        fields["user_id"],
		Symbol:        fields["symbol"],
		Condition:     models.AlertCondition(fields["condition"]),
		TargetPrice:   target,
		PercentChange: pct,
		BasePrice:     base,
		Triggered:     fields["triggered"] == "1",
		Active:        fields["active"] == "1",
		CreatedAt:     created,
	}
	if ts, ok := fields["triggered_at"]; ok && ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse triggered_at: %w", err)
		}
		a.TriggeredAt = &t
	}
	return a, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
