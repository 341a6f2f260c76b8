package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stormwatch/internal/types"
)

type fakeSubStore struct {
	due      []types.Subscription
	lastRuns map[string]time.Time
	listErr  error
}

func (s *fakeSubStore) ListDue(context.Context, time.Time) ([]types.Subscription, error) {
	return s.due, s.listErr
}

func (s *fakeSubStore) UpdateLastRunAt(_ context.Context, id string, runAt time.Time) error {
	if s.lastRuns == nil {
		s.lastRuns = make(map[string]time.Time)
	}
	s.lastRuns[id] = runAt
	return nil
}

type fakeEventSource struct {
	events []types.ViolationEvent
	since  []time.Time
}

func (s *fakeEventSource) ListEventsSince(_ context.Context, since time.Time) ([]types.ViolationEvent, error) {
	s.since = append(s.since, since)
	return s.events, nil
}

type fakeLedger struct {
	recorded map[string]bool
	err      error
}

func (l *fakeLedger) Exists(_ context.Context, subID, veID string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.recorded[subID+"|"+veID], nil
}

func (l *fakeLedger) Record(_ context.Context, subID, veID, _ string, _ time.Time) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.recorded == nil {
		l.recorded = make(map[string]bool)
	}
	key := subID + "|" + veID
	if l.recorded[key] {
		return false, nil
	}
	l.recorded[key] = true
	return true, nil
}

type fakeDispatcher struct {
	messages []types.AlertDispatchMessage
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg types.AlertDispatchMessage) error {
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, msg)
	return nil
}

func countySubscription(id string) types.Subscription {
	return types.Subscription{
		ID:     id,
		UserID: "usr_1",
		Name:   "Alameda watch",
		Mode:   types.ModeJurisdiction,
		Params: types.SubscriptionParams{
			Jurisdiction: &types.JurisdictionParams{Counties: []string{"Alameda"}},
		},
		Schedule: types.ScheduleDaily,
		Delivery: types.DeliveryEmail,
		Active:   true,
	}
}

func runnerEvents(n int) []types.ViolationEvent {
	var out []types.ViolationEvent
	for i := 0; i < n; i++ {
		f := bayFacility()
		f.ID = fmt.Sprintf("fac_%d", i)
		e := testEvent(f, 3.0, true)
		e.ID = fmt.Sprintf("ve_%d", i)
		e.FacilityID = f.ID
		out = append(out, *e)
	}
	return out
}

func TestRunnerDispatchesMatches(t *testing.T) {
	subs := &fakeSubStore{due: []types.Subscription{countySubscription("sub_1")}}
	events := &fakeEventSource{events: runnerEvents(3)}
	ledger := &fakeLedger{}
	dispatcher := &fakeDispatcher{}
	runner := NewRunner(RunnerConfig{}, subs, events, ledger, NewMatcher(nil), dispatcher, nil)

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	res, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.SubscriptionsEvaluated != 1 {
		t.Errorf("SubscriptionsEvaluated = %d, want 1", res.SubscriptionsEvaluated)
	}
	if res.AlertsRecorded != 3 {
		t.Errorf("AlertsRecorded = %d, want 3", res.AlertsRecorded)
	}
	if len(dispatcher.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(dispatcher.messages))
	}

	msg := dispatcher.messages[0]
	if msg.SubscriptionID != "sub_1" || msg.UserID != "usr_1" {
		t.Errorf("message routing wrong: %+v", msg)
	}
	if len(msg.Violations) != 3 {
		t.Errorf("violations in message = %d, want 3", len(msg.Violations))
	}
	if msg.Violations[0].FacilityName != "Acme Metals" {
		t.Errorf("item facility name = %q", msg.Violations[0].FacilityName)
	}
	if got := subs.lastRuns["sub_1"]; !got.Equal(now) {
		t.Errorf("last_run_at = %v, want %v", got, now)
	}
}

func TestRunnerChunksLargeMatchSets(t *testing.T) {
	subs := &fakeSubStore{due: []types.Subscription{countySubscription("sub_1")}}
	events := &fakeEventSource{events: runnerEvents(5)}
	dispatcher := &fakeDispatcher{}
	runner := NewRunner(RunnerConfig{MaxViolationsPerMessage: 2}, subs, events, &fakeLedger{}, NewMatcher(nil), dispatcher, nil)

	res, err := runner.Run(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.MessagesDispatched != 3 {
		t.Errorf("MessagesDispatched = %d, want 3 (2+2+1)", res.MessagesDispatched)
	}
	if len(dispatcher.messages[2].Violations) != 1 {
		t.Errorf("last message should carry the remainder")
	}
}

func TestRunnerAdvancesCursorOnZeroMatches(t *testing.T) {
	sub := countySubscription("sub_1")
	sub.Params.Jurisdiction = &types.JurisdictionParams{Counties: []string{"San Diego"}}
	subs := &fakeSubStore{due: []types.Subscription{sub}}
	events := &fakeEventSource{events: runnerEvents(2)}
	dispatcher := &fakeDispatcher{}
	runner := NewRunner(RunnerConfig{}, subs, events, &fakeLedger{}, NewMatcher(nil), dispatcher, nil)

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	res, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.AlertsRecorded != 0 || len(dispatcher.messages) != 0 {
		t.Error("nothing should have matched")
	}
	if got := subs.lastRuns["sub_1"]; !got.Equal(now) {
		t.Error("cursor must advance even when nothing matched")
	}
}

func TestRunnerSkipsAlreadyAlertedPairs(t *testing.T) {
	subs := &fakeSubStore{due: []types.Subscription{countySubscription("sub_1")}}
	events := &fakeEventSource{events: runnerEvents(2)}
	ledger := &fakeLedger{recorded: map[string]bool{"sub_1|ve_0": true}}
	dispatcher := &fakeDispatcher{}
	runner := NewRunner(RunnerConfig{}, subs, events, ledger, NewMatcher(nil), dispatcher, nil)

	res, err := runner.Run(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.AlertsRecorded != 1 {
		t.Errorf("AlertsRecorded = %d, want 1 (ve_0 already alerted)", res.AlertsRecorded)
	}
	if len(dispatcher.messages) != 1 || len(dispatcher.messages[0].Violations) != 1 {
		t.Fatal("only the new pair should be dispatched")
	}
	if dispatcher.messages[0].Violations[0].ViolationEventID != "ve_1" {
		t.Errorf("dispatched %s, want ve_1", dispatcher.messages[0].Violations[0].ViolationEventID)
	}
}

func TestRunnerUsesLastRunAtAsWindow(t *testing.T) {
	last := time.Date(2025, 5, 25, 8, 0, 0, 0, time.UTC)
	sub := countySubscription("sub_1")
	sub.LastRunAt = &last
	subs := &fakeSubStore{due: []types.Subscription{sub}}
	events := &fakeEventSource{}
	runner := NewRunner(RunnerConfig{}, subs, events, &fakeLedger{}, NewMatcher(nil), &fakeDispatcher{}, nil)

	if _, err := runner.Run(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(events.since) != 1 || !events.since[0].Equal(last) {
		t.Errorf("event window = %v, want %v", events.since, last)
	}
}

func TestRunnerStopsOnDispatchError(t *testing.T) {
	subs := &fakeSubStore{due: []types.Subscription{countySubscription("sub_1")}}
	events := &fakeEventSource{events: runnerEvents(1)}
	dispatcher := &fakeDispatcher{err: errors.New("queue unavailable")}
	runner := NewRunner(RunnerConfig{}, subs, events, &fakeLedger{}, NewMatcher(nil), dispatcher, nil)

	_, err := runner.Run(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("dispatch failure should propagate")
	}
	if _, ok := subs.lastRuns["sub_1"]; ok {
		t.Error("cursor must not advance when the run failed")
	}
}

func TestRunnerRedeliversAfterDispatchFailure(t *testing.T) {
	ledger := &fakeLedger{}
	newRunner := func(d *fakeDispatcher) (*Runner, *fakeSubStore) {
		subs := &fakeSubStore{due: []types.Subscription{countySubscription("sub_1")}}
		events := &fakeEventSource{events: runnerEvents(1)}
		return NewRunner(RunnerConfig{}, subs, events, ledger, NewMatcher(nil), d, nil), subs
	}

	failing := &fakeDispatcher{err: errors.New("queue unavailable")}
	runner, subs := newRunner(failing)
	if _, err := runner.Run(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("first run should fail")
	}
	if len(ledger.recorded) != 0 {
		t.Fatalf("ledger rows = %d after failed dispatch, want 0", len(ledger.recorded))
	}
	if _, ok := subs.lastRuns["sub_1"]; ok {
		t.Fatal("cursor must not advance after failed dispatch")
	}

	healthy := &fakeDispatcher{}
	runner, _ = newRunner(healthy)
	res, err := runner.Run(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("retry run error: %v", err)
	}
	if len(healthy.messages) != 1 {
		t.Fatalf("retry dispatched %d messages, want 1", len(healthy.messages))
	}
	if res.AlertsRecorded != 1 {
		t.Errorf("AlertsRecorded = %d, want 1", res.AlertsRecorded)
	}
	if !ledger.recorded["sub_1|ve_0"] {
		t.Error("pair should be in the ledger after successful dispatch")
	}
}
