package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestLogNotifier(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	n := LogNotifier{Log: log}

	n.Notify(context.Background(), Event{Kind: EventLevelUp, UserID: "u1", Level: 4, Message: "Reached level 4"})
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.InfoLevel {
		t.Fatalf("expected an info entry, got %+v", entry)
	}
	if entry.Data["event"] != "level_up" || entry.Data["level"] != 4 {
		t.Errorf("unexpected fields %v", entry.Data)
	}
	if _, ok := entry.Data["challenge_id"]; ok {
		t.Error("empty fields should be left out")
	}

	n.Notify(context.Background(), Event{Kind: EventSyncFailed, UserID: "u1", Message: "rate_limited"})
	if hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("sync failures should log at warn, got %s", hook.LastEntry().Level)
	}
	if len(hook.AllEntries()) != 2 {
		t.Errorf("expected 2 entries, got %d", len(hook.AllEntries()))
	}
}
