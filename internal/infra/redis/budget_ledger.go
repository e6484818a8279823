package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.BudgetLedger = (*BudgetLedger)(nil)

// One hash per window: start (unix ms) and spent. The script rolls expired
// windows forward, then either checks every cap (reserve) or not (spend)
// before adding units to all windows. Redis runs it atomically.
var luaBudget = redis.NewScript(`
local units = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local reserve = ARGV[3] == "reserve"
local starts, spent = {}, {}
for i = 1, #KEYS do
	local dur = tonumber(ARGV[2 + 2 * i])
	local cap = tonumber(ARGV[3 + 2 * i])
	local s = tonumber(redis.call("HGET", KEYS[i], "start") or "0")
	local sp = tonumber(redis.call("HGET", KEYS[i], "spent") or "0")
	if s == 0 or now >= s + dur then
		s = now
		sp = 0
	end
	if reserve and sp + units > cap then
		return 0
	end
	starts[i] = s
	spent[i] = sp
end
for i = 1, #KEYS do
	redis.call("HSET", KEYS[i], "start", starts[i], "spent", spent[i] + units)
end
return 1`)

// BudgetLedger shares caps across every instance pointing at the same Redis.
type BudgetLedger struct {
	client *Client
	ledger string
	specs  []model.BudgetWindowSpec
	now    func() time.Time
}

func NewBudgetLedger(client *Client, ledger string, specs []model.BudgetWindowSpec) (*BudgetLedger, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: budget ledger needs at least one window", domain.ErrInvalidArgument)
	}
	return &BudgetLedger{client: client, ledger: ledger, specs: specs, now: time.Now}, nil
}

func (l *BudgetLedger) key(name string) string {
	return fmt.Sprintf("budget:%s:%s", l.ledger, name)
}

func (l *BudgetLedger) run(ctx context.Context, units int64, mode string) (bool, error) {
	if units < 0 {
		return false, fmt.Errorf("%w: negative units", domain.ErrInvalidArgument)
	}
	keys := make([]string, 0, len(l.specs))
	args := []interface{}{units, l.now().UnixMilli(), mode}
	for _, s := range l.specs {
		keys = append(keys, l.key(s.Name))
		args = append(args, s.Duration.Milliseconds(), s.CapUnits)
	}
	res, err := luaBudget.Run(ctx, l.client.cli, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("budget script: %w", err)
	}
	return res == 1, nil
}

func (l *BudgetLedger) TryReserve(ctx context.Context, units int64) (bool, error) {
	return l.run(ctx, units, "reserve")
}

func (l *BudgetLedger) RecordSpend(ctx context.Context, units int64) error {
	_, err := l.run(ctx, units, "spend")
	return err
}

func (l *BudgetLedger) Snapshot(ctx context.Context) ([]model.BudgetWindow, error) {
	now := l.now()
	out := make([]model.BudgetWindow, 0, len(l.specs))
	for _, s := range l.specs {
		vals, err := l.client.cli.HMGet(ctx, l.key(s.Name), "start", "spent").Result()
		if err != nil {
			return nil, err
		}
		w := model.BudgetWindow{Name: s.Name, Duration: s.Duration, CapUnits: s.CapUnits, WindowStart: now}
		if ms := parseInt(vals[0]); ms > 0 {
			w.WindowStart = time.UnixMilli(ms)
			w.SpentUnits = parseInt(vals[1])
		}
		w.RollForward(now)
		out = append(out, w)
	}
	return out, nil
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
