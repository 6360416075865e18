package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"vortx/internal/observability"
)

// waitThreshold keeps immediate token grants out of the wait metric.
const waitThreshold = time.Millisecond

type rateLimiter interface {
	Wait(ctx context.Context) error
}

// observedLimiter reports how long callers were held by the token bucket.
type observedLimiter struct {
	limiter *rate.Limiter
	onWait  func(time.Duration)
	now     func() time.Time
}

// newIngressLimiter returns nil when interval or burst disable limiting.
func newIngressLimiter(interval time.Duration, burst int, onWait func(time.Duration)) *observedLimiter {
	if interval <= 0 || burst <= 0 {
		return nil
	}
	return &observedLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		onWait:  onWait,
		now:     time.Now,
	}
}

func (l *observedLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := l.now()
	err := l.limiter.Wait(ctx)
	if waited := l.now().Sub(start); waited >= waitThreshold && l.onWait != nil {
		l.onWait(waited)
	}
	return err
}

type rateLimitedServerStream struct {
	grpc.ServerStream
	limiter rateLimiter
}

func (s *rateLimitedServerStream) RecvMsg(m any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.Context()); err != nil {
			return err
		}
	}
	return s.ServerStream.RecvMsg(m)
}

func rateLimitUnaryInterceptor(limiter rateLimiter, metrics *observability.Metrics, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		tracked := shouldTrackMethod(info.FullMethod)
		span := &observability.CallSpan{}
		start := time.Now()
		if tracked {
			span = metrics.Start(info.FullMethod)
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				span.End(err)
				return nil, err
			}
		}
		resp, err := handler(ctx, req)
		span.End(err)
		if err != nil && tracked && logger != nil {
			logger.Warn("grpc unary call failed", "method", info.FullMethod, "elapsed", time.Since(start), "error", err)
		}
		return resp, err
	}
}

func rateLimitStreamInterceptor(limiter rateLimiter, metrics *observability.Metrics, logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		tracked := shouldTrackMethod(info.FullMethod)
		span := &observability.CallSpan{}
		start := time.Now()
		if tracked {
			span = metrics.Start(info.FullMethod)
		}
		if limiter != nil {
			stream = &rateLimitedServerStream{ServerStream: stream, limiter: limiter}
		}
		err := handler(srv, stream)
		span.End(err)
		if err != nil && tracked && logger != nil {
			logger.Warn("grpc stream failed", "method", info.FullMethod, "elapsed", time.Since(start), "error", err)
		}
		return err
	}
}

func shouldTrackMethod(method string) bool {
	return method != "" && !strings.HasPrefix(method, "/grpc.reflection.")
}
