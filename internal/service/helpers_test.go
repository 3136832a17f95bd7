package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/oauth2"

	"veloskill/internal/store"
	"veloskill/internal/strava"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: testNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func nullLogger() logrus.FieldLogger {
	log, _ := logtest.NewNullLogger()
	return log
}

// connectUser stores credentials valid for an hour after testNow
func connectUser(t *testing.T, s *store.Store, userID string) {
	t.Helper()

	err := s.SaveSyncState(context.Background(), &store.SyncState{
		UserID:       userID,
		AthleteID:    42,
		AccessToken:  "token-" + userID,
		RefreshToken: "refresh-" + userID,
		ExpiresAt:    testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to save sync state: %v", err)
	}
}

func getState(t *testing.T, s *store.Store, userID string) *store.SyncState {
	t.Helper()

	st, err := s.GetSyncState(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to load sync state: %v", err)
	}
	return st
}

func ride(id int64, start time.Time, meters float64, movingS int) strava.Activity {
	return strava.Activity{
		ID:                 id,
		Name:               "Ride",
		SportType:          "Ride",
		StartDate:          start,
		StartDateLocal:     start,
		Distance:           meters,
		MovingTime:         movingS,
		TotalElevationGain: 100,
		AverageSpeed:       8,
	}
}

type fakeFeed struct {
	mu sync.Mutex

	activities map[string][]strava.Activity // by token
	pageErrs   map[int][]error              // consumed in order
	tokenErrs  map[string]error
	detailErrs map[int64]error
	streamErrs map[int64]error
	details    map[int64]*strava.ActivityDetail
	streams    map[int64]*strava.Streams

	stravaOrder bool // page like the real listing endpoint

	pages       []int
	afters      []time.Time
	detailCalls map[int64]int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		activities:  make(map[string][]strava.Activity),
		pageErrs:    make(map[int][]error),
		tokenErrs:   make(map[string]error),
		detailErrs:  make(map[int64]error),
		streamErrs:  make(map[int64]error),
		details:     make(map[int64]*strava.ActivityDetail),
		streams:     make(map[int64]*strava.Streams),
		detailCalls: make(map[int64]int),
	}
}

func (f *fakeFeed) ListActivities(_ context.Context, token string, after time.Time, page, perPage int) ([]strava.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pages = append(f.pages, page)
	f.afters = append(f.afters, after)

	if err := f.tokenErrs[token]; err != nil {
		return nil, err
	}
	if errs := f.pageErrs[page]; len(errs) > 0 {
		f.pageErrs[page] = errs[1:]
		return nil, errs[0]
	}

	all := f.activities[token]
	if f.stravaOrder {
		all = stravaOrdered(all, after)
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, nil
	}
	end := min(start+perPage, len(all))
	return append([]strava.Activity(nil), all[start:end]...), nil
}

// stravaOrdered lists newest first without a filter, and oldest first
// starting after the given time otherwise
func stravaOrdered(all []strava.Activity, after time.Time) []strava.Activity {
	out := make([]strava.Activity, 0, len(all))
	for _, a := range all {
		if after.IsZero() || a.StartDate.After(after) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if after.IsZero() {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out
}

func (f *fakeFeed) GetActivityDetail(_ context.Context, _ string, id int64) (*strava.ActivityDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.detailCalls[id]++
	if err := f.detailErrs[id]; err != nil {
		return nil, err
	}
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return &strava.ActivityDetail{Activity: strava.Activity{ID: id}}, nil
}

func (f *fakeFeed) GetActivityStreams(_ context.Context, _ string, id int64) (*strava.Streams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.streamErrs[id]; err != nil {
		return nil, err
	}
	return f.streams[id], nil
}

type fakeRefresher struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (r *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.tok, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventKind, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

func (n *recordingNotifier) count(kind EventKind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

type recordedSleeps struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *recordedSleeps) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, s := range r.sleeps {
		if s == d {
			c++
		}
	}
	return c
}
