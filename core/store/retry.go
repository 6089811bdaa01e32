package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/slotshare/core/model"
)

// ErrRetriesExhausted is returned when every attempt hit a version conflict.
var ErrRetriesExhausted = errors.New("optimistic update retries exhausted")

// RetryPolicy bounds optimistic update attempts. The wait before retry n is
// n*Step.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Step        time.Duration `json:"step"`
	// Notify is called before each retry.
	Notify func(err error, wait time.Duration) `json:"-"`
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Step: 50 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Step < 0 {
		p.Step = 0
	}
	return p
}

type linearBackOff struct {
	step time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linearBackOff) Reset() { l.n = 0 }

// Update reads a record, applies fn to it and saves it. On ErrVersionConflict
// the record is re-read and fn re-applied to the fresh copy. Errors returned
// by fn or by non-conflicting store failures stop immediately.
func Update[T any](ctx context.Context, p RetryPolicy, get func(context.Context) (T, error), save func(context.Context, T) (T, error), fn func(*T) error) (T, error) {
	p = p.normalized()
	var out T
	attempts := 0
	op := func() error {
		attempts++
		cur, err := get(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(&cur); err != nil {
			return backoff.Permanent(err)
		}
		saved, err := save(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = saved
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: p.Step}, uint64(p.MaxAttempts-1)), ctx)
	var notify backoff.Notify
	if p.Notify != nil {
		notify = backoff.Notify(p.Notify)
	}
	err := backoff.RetryNotify(op, b, notify)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return out, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}
		return out, err
	}
	return out, nil
}

// UpdateRoom applies fn to the latest version of room id.
func UpdateRoom(ctx context.Context, s RoomStore, p RetryPolicy, id string, fn func(*model.Room) error) (model.Room, error) {
	return Update(ctx, p,
		func(ctx context.Context) (model.Room, error) { return s.GetRoom(ctx, id) },
		s.SaveRoom, fn)
}

// UpdateMember applies fn to the latest version of member id.
func UpdateMember(ctx context.Context, s MemberStore, p RetryPolicy, id string, fn func(*model.Member) error) (model.Member, error) {
	return Update(ctx, p,
		func(ctx context.Context) (model.Member, error) { return s.GetMember(ctx, id) },
		s.SaveMember, fn)
}

// UpdateExchange applies fn to the latest version of request id.
func UpdateExchange(ctx context.Context, s ExchangeStore, p RetryPolicy, id string, fn func(*model.ExchangeRequest) error) (model.ExchangeRequest, error) {
	return Update(ctx, p,
		func(ctx context.Context) (model.ExchangeRequest, error) { return s.GetExchange(ctx, id) },
		s.SaveExchange, fn)
}
