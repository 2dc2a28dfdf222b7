package logger

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// LogFields are attached to a context and appended to every record logged
// with it. Nil pointers and an empty Component are omitted.
type LogFields struct {
	OwnerID   *string
	Token     *string
	CycleID   *string
	MessageID *string // redis stream entry id
	Component string
}

// WithLogFields returns ctx with fields merged over any fields already
// present. Set values in fields win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	return context.WithValue(ctx, fieldsKey{}, GetLogFields(ctx).merge(fields))
}

func GetLogFields(ctx context.Context) LogFields {
	fields, _ := ctx.Value(fieldsKey{}).(LogFields)
	return fields
}

func (f LogFields) merge(next LogFields) LogFields {
	f.OwnerID = pick(f.OwnerID, next.OwnerID)
	f.Token = pick(f.Token, next.Token)
	f.CycleID = pick(f.CycleID, next.CycleID)
	f.MessageID = pick(f.MessageID, next.MessageID)
	if next.Component != "" {
		f.Component = next.Component
	}
	return f
}

func (f LogFields) attrs() []slog.Attr {
	var out []slog.Attr
	add := func(key string, v *string) {
		if v != nil {
			out = append(out, slog.String(key, *v))
		}
	}
	add("owner_id", f.OwnerID)
	add("token", f.Token)
	add("cycle_id", f.CycleID)
	add("message_id", f.MessageID)
	if f.Component != "" {
		out = append(out, slog.String("component", f.Component))
	}
	return out
}

func pick(cur, next *string) *string {
	if next != nil {
		return next
	}
	return cur
}

func Ptr[T any](v T) *T {
	return &v
}

// Truncate cuts s to maxLen bytes for log output, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
