package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

type recordSender struct {
	titles []string
	bodies []string
}

func (s *recordSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func (s *recordSender) Name() string { return "record" }

func newTestWatcher(sender Sender, events []string) *Watcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := NewNotifier([]Sender{sender}, events, logger)
	return NewWatcher(nil, notifier, logger)
}

func TestWatcherForwardsResolvedDuel(t *testing.T) {
	sender := &recordSender{}
	w := newTestWatcher(sender, []string{"duel_resolved"})

	w.handleEvent(context.Background(), []byte(`{"event":"duel_resolved","id":"abc","winner":"wallet1","exit_price":151.5}`))

	if len(sender.titles) != 1 || sender.titles[0] != "Duel resolved" {
		t.Fatalf("titles = %v", sender.titles)
	}
}

func TestWatcherReportsPushWhenWinnerEmpty(t *testing.T) {
	sender := &recordSender{}
	w := newTestWatcher(sender, nil)

	w.handleEvent(context.Background(), []byte(`{"event":"duel_resolved","id":"abc","winner":null,"exit_price":150}`))

	if len(sender.titles) != 1 || sender.titles[0] != "Duel pushed" {
		t.Fatalf("titles = %v", sender.titles)
	}
}

func TestWatcherFiltersUnconfiguredEvents(t *testing.T) {
	sender := &recordSender{}
	w := newTestWatcher(sender, []string{"duel_resolved"})

	w.handleEvent(context.Background(), []byte(`{"event":"duel_expired","id":"abc"}`))
	w.handleEvent(context.Background(), []byte(`{"event":"duel_created","id":"abc"}`))
	w.handleEvent(context.Background(), []byte(`not json`))

	if len(sender.titles) != 0 {
		t.Fatalf("titles = %v, want none", sender.titles)
	}
}
