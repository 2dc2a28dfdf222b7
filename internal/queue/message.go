package queue

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"basegraph.app/docwatch/internal/model"
)

// Message is one notification waiting for delivery.
type Message struct {
	ID           string
	Target       string
	Notification model.Notification
	Attempt      int
	TraceParent  string
	LastError    string
	Raw          redis.XMessage
}

var knownKinds = map[model.NotificationKind]bool{
	model.NotificationNewDocument: true,
	model.NotificationTimeUpdated: true,
	model.NotificationUserChanged: true,
	model.NotificationAutoPaused:  true,
}

func ParseMessage(msg redis.XMessage) (Message, error) {
	target, err := parseString(msg.Values, "target")
	if err != nil {
		return Message{}, err
	}
	if target == "" {
		return Message{}, fmt.Errorf("empty target")
	}

	payload, err := parseString(msg.Values, "payload")
	if err != nil {
		return Message{}, err
	}
	var n model.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Message{}, fmt.Errorf("decoding payload: %w", err)
	}
	if !knownKinds[n.Kind] {
		return Message{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	if n.Token == "" || n.OwnerID == "" {
		return Message{}, fmt.Errorf("payload missing token or owner_id")
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Message{
		ID:           msg.ID,
		Target:       target,
		Notification: n,
		Attempt:      attempt,
		TraceParent:  parseOptionalString(msg.Values, "traceparent"),
		LastError:    parseOptionalString(msg.Values, "last_error"),
		Raw:          msg,
	}, nil
}

func messageValues(target string, n model.Notification, attempt int, traceParent string) (map[string]any, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encoding notification: %w", err)
	}

	values := map[string]any{
		"target":   target,
		"kind":     string(n.Kind),
		"owner_id": n.OwnerID,
		"token":    n.Token,
		"payload":  string(payload),
		"attempt":  attempt,
	}
	if traceParent != "" {
		values["traceparent"] = traceParent
	}
	return values, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
