package engine

import (
	"fmt"
	"log/slog"
	"time"
)

func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Executer) Executer {
		return ExecuterFunc(func(c Context, p *Params) *Response {
			start := time.Now()
			resp := next.Execute(c, p)

			attrs := []any{
				"task", c.TaskId(),
				"session", c.SessionID(),
				"step", p.Step,
				"duration", time.Since(start),
			}

			if resp != nil && resp.Err != nil {
				logger.Error("chain step failed", append(attrs, "err", resp.Err)...)
				return resp
			}

			logger.Debug("chain step completed", attrs...)
			return resp
		})
	}
}

// RecoverMiddleware turns a panicking executer into an error response.
func RecoverMiddleware() Middleware {
	return func(next Executer) Executer {
		return ExecuterFunc(func(c Context, p *Params) (resp *Response) {
			defer func() {
				if r := recover(); r != nil {
					resp = ErrorResponse(c.State(), PanicError{Step: p.Step, Value: r})
				}
			}()
			return next.Execute(c, p)
		})
	}
}

type PanicError struct {
	Step  string
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic in step '%s': %v", e.Step, e.Value)
}
