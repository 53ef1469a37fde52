package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestLoggerNotifierWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Send(context.Background(), Message{
		Kind:        KindTransferReceived,
		Destination: "acct-1",
		Body:        "Received 10.00 from alice@example.com",
		Amount:      "10.00",
		OccurredAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["kind"] != KindTransferReceived || record["destination"] != "acct-1" || record["amount"] != "10.00" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{Kind: KindDeposit}); err != nil {
		t.Fatalf("nil notifier should be a no-op: %v", err)
	}
}
