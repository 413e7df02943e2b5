/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的固定窗口限流器，按客户端和全局限制挖掘任务提交
 * @architecture Utility layer - distributed rate limiting
 * @stateFlow rules -> per-rule window counter (Redis INCR/EXPIRE or in-process) -> allow or reject
 * @rules Client rules are checked before the global rule; the first exhausted rule rejects;
 *        a rejected request does not consume quota of the rule that rejected it
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/middleware/rate_limit.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Scopes of a rule.
const (
	ScopeClient = "client"
	ScopeGlobal = "global"
)

// Result is the outcome of a check.
type Result struct {
	Allowed   bool   `json:"allowed"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   int64  `json:"reset_at"` // unix seconds
	Scope     string `json:"scope"`
}

// Rule allows MaxRequests per Window for one scope and target.
type Rule struct {
	Scope       string
	TargetID    string // client id; empty for the global scope
	Window      time.Duration
	MaxRequests int
}

// Limiter checks a request against rules.
type Limiter interface {
	Check(ctx context.Context, rules []Rule) (*Result, error)
}

var scopePriority = map[string]int{ScopeClient: 2, ScopeGlobal: 1}

func sortRules(rules []Rule) []Rule {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scopePriority[sorted[i].Scope] > scopePriority[sorted[j].Scope]
	})
	return sorted
}

// check runs rules in priority order and returns the first rejection, or the
// tightest allowing result.
func check(ctx context.Context, rules []Rule, one func(context.Context, Rule) (*Result, error)) (*Result, error) {
	var tightest *Result
	for _, rule := range sortRules(rules) {
		res, err := one(ctx, rule)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return res, nil
		}
		if tightest == nil || res.Remaining < tightest.Remaining {
			tightest = res
		}
	}
	if tightest == nil {
		return &Result{Allowed: true, Limit: -1, Remaining: -1, Scope: "none"}, nil
	}
	return tightest, nil
}

const checkScript = `
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	local max_requests = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	if current >= max_requests then
		local ttl = redis.call('PTTL', KEYS[1])
		if ttl < 0 then ttl = window_ms end
		return {0, current, ttl}
	end

	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], window_ms)
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then ttl = window_ms end
	return {1, count, ttl}
`

// RedisRateLimiter counts windows in Redis so limits hold across instances.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRateLimiter creates a limiter whose keys start with prefix.
func NewRedisRateLimiter(client *redis.Client, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRateLimiter) key(rule Rule, now time.Time) string {
	window := now.UnixMilli() / rule.Window.Milliseconds()
	if rule.Scope == ScopeGlobal {
		return fmt.Sprintf("%s:rate_limit:%s:%d", r.prefix, rule.Scope, window)
	}
	return fmt.Sprintf("%s:rate_limit:%s:%s:%d", r.prefix, rule.Scope, rule.TargetID, window)
}

// Check implements Limiter.
func (r *RedisRateLimiter) Check(ctx context.Context, rules []Rule) (*Result, error) {
	return check(ctx, rules, r.checkRule)
}

func (r *RedisRateLimiter) checkRule(ctx context.Context, rule Rule) (*Result, error) {
	now := r.now()
	raw, err := r.client.Eval(ctx, checkScript, []string{r.key(rule, now)}, rule.MaxRequests, rule.Window.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("rate_limiter: check %s: %w", rule.Scope, err)
	}
	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return nil, fmt.Errorf("rate_limiter: unexpected script reply %v", raw)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	ttl, _ := vals[2].(int64)

	remaining := rule.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   allowed == 1,
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(ttl) * time.Millisecond).Unix(),
		Scope:     rule.Scope,
	}, nil
}

// LocalRateLimiter 进程内限流器，用于单实例部署
type LocalRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*localWindow
	now     func() time.Time
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// NewLocalRateLimiter creates an empty LocalRateLimiter.
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{windows: make(map[string]*localWindow), now: time.Now}
}

// Check implements Limiter.
func (l *LocalRateLimiter) Check(ctx context.Context, rules []Rule) (*Result, error) {
	return check(ctx, rules, l.checkRule)
}

func (l *LocalRateLimiter) checkRule(_ context.Context, rule Rule) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := rule.Scope + ":" + rule.TargetID
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &localWindow{resetAt: now.Add(rule.Window)}
		l.windows[key] = w
		l.evict(now)
	}
	res := &Result{Limit: rule.MaxRequests, ResetAt: w.resetAt.Unix(), Scope: rule.Scope}
	if w.count >= rule.MaxRequests {
		return res, nil
	}
	w.count++
	res.Allowed = true
	res.Remaining = rule.MaxRequests - w.count
	return res, nil
}

// evict drops expired windows; called with mu held.
func (l *LocalRateLimiter) evict(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
