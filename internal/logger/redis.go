package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const slowCommand = 100 * time.Millisecond

// RedisHook logs failed and slow redis commands. Cache misses are not errors.
type RedisHook struct{}

func NewRedisHook() *RedisHook {
	return &RedisHook{}
}

func (RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, "redis dial failed",
				slog.String("addr", addr),
				slog.Duration("latency", time.Since(start)),
				slog.Any("err", err),
			)
		}
		return conn, err
	}
}

func (RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		elapsed := time.Since(start)

		name := cmd.Name()
		args := "[PROTECTED]"
		if name != "auth" && name != "hello" {
			args = fmt.Sprint(cmd.Args())
		}
		fields := []any{
			slog.String("command", name),
			slog.String("args", args),
			slog.Duration("latency", elapsed),
		}

		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			slog.WarnContext(ctx, "redis error", append(fields, slog.Any("err", err))...)
		case elapsed > slowCommand:
			slog.WarnContext(ctx, "redis slow", fields...)
		}
		return err
	}
}

func (RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "redis pipeline error", slog.Int("cmd_count", len(cmds)), slog.Any("err", err))
		}
		return err
	}
}
