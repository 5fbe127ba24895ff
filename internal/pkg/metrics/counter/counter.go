package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const shareViewsKey = "share:counters:views"

// Counter buffers share view increments in a Redis hash and periodically
// applies them to share_records in one batched UPDATE.
type Counter struct {
	rdb *redis.Client
	db  *gorm.DB
}

func New(rdb *redis.Client, db *gorm.DB) *Counter {
	return &Counter{rdb: rdb, db: db}
}

// AddShareView increments the pending view counter for a share record.
func (c *Counter) AddShareView(ctx context.Context, recordID string) error {
	return c.rdb.HIncrBy(ctx, shareViewsKey, recordID, 1).Err()
}

// Flush drains pending counters to the database.
func (c *Counter) Flush(ctx context.Context) error {
	return c.flushHashToTable(ctx, shareViewsKey, "share_records", "view_count")
}

// Schedule runs Flush on sched at the given cron schedule.
func (c *Counter) Schedule(sched *cron.Cron, schedule string) (cron.EntryID, error) {
	return sched.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Flush(ctx); err != nil {
			log.Errorf("[Counter] flush share views: %v", err)
		}
	})
}

// flushHashToTable drains a Redis hash and applies batched increments.
// RENAME to a temp key keeps increments that arrive during the flush.
func (c *Counter) flushHashToTable(ctx context.Context, redisKey, table, column string) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer c.rdb.Del(context.Background(), tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	sql, args := buildIncrementSQL(table, column, data)
	if sql == "" {
		return nil
	}
	if err := c.db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
		return err
	}
	log.Debugf("[Counter] flushed %d %s increments", len(args)/3, table)
	return nil
}

// buildIncrementSQL composes
// UPDATE <table> SET <col> = <col> + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
// from id -> increment pairs. Non-numeric or zero increments are skipped.
func buildIncrementSQL(table, column string, data map[string]string) (string, []interface{}) {
	type pair struct {
		id  string
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 || k == "" {
			continue
		}
		pairs = append(pairs, pair{id: k, inc: inc})
	}
	if len(pairs) == 0 {
		return "", nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	var b strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(column)
	b.WriteString(" = ")
	b.WriteString(column)
	b.WriteString(" + CASE id")
	for _, p := range pairs {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	b.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
		args = append(args, p.id)
	}
	b.WriteString(")")
	return b.String(), args
}
