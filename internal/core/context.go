package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "sync_trigger"

// Trigger describes who started a sync pass. It is attached to pass logs.
type Trigger struct {
	Source    string // "http", "cli", ...
	IPAddress string
	UserAgent string
}

// ContextWithTrigger attaches t to ctx.
func ContextWithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, t)
}

// TriggerFromContext returns the trigger stored in ctx, if any.
func TriggerFromContext(ctx context.Context) (Trigger, bool) {
	t, ok := ctx.Value(ctxKeyTrigger).(Trigger)
	return t, ok
}

// logArgs returns slog key/value pairs describing the trigger.
func (t Trigger) logArgs() []any {
	args := []any{"trigger", t.Source}
	if t.IPAddress != "" {
		args = append(args, "ip", t.IPAddress)
	}
	if t.UserAgent != "" {
		args = append(args, "user_agent", t.UserAgent)
	}
	return args
}
