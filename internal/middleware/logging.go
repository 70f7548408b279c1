package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/auth"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// actorSlot is seeded by RequestLogger and filled by RequireAuth further
// down the chain, so the log line can carry the resolved family and
// member even though the logger runs outside the session lookup.
type actorSlot struct {
	actor *auth.Actor
}

type actorSlotKey struct{}

func noteActor(ctx context.Context, a auth.Actor) {
	if slot, ok := ctx.Value(actorSlotKey{}).(*actorSlot); ok {
		slot.actor = &a
	}
}

// RequestLogger returns middleware that logs each HTTP request with
// method, path, status code, duration, remote IP, and the acting family
// member when a session resolves.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			slot := &actorSlot{}
			r = r.WithContext(context.WithValue(r.Context(), actorSlotKey{}, slot))

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
				slog.String("remote", RealIP(r)),
			}
			if slot.actor != nil {
				attrs = append(attrs,
					slog.Int64("family_id", slot.actor.FamilyID),
					slog.Int64("member_id", slot.actor.MemberID),
				)
			}

			switch {
			case rec.status >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
			case rec.status >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
			}
		})
	}
}
