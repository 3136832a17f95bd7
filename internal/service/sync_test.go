package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"golang.org/x/oauth2"

	"veloskill/internal/auth"
	"veloskill/internal/cache"
	"veloskill/internal/store"
	"veloskill/internal/strava"
)

type syncFixture struct {
	svc      *SyncService
	store    *store.Store
	feed     *fakeFeed
	clock    *testClock
	sleeps   *recordedSleeps
	notifier *recordingNotifier
}

func setupSync(t *testing.T, opts SyncOptions, c cache.Cache) *syncFixture {
	t.Helper()

	f := &syncFixture{
		store:    setupTestStore(t),
		feed:     newFakeFeed(),
		clock:    newTestClock(),
		sleeps:   &recordedSleeps{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewSyncService(f.feed, &fakeRefresher{}, f.store, c, f.notifier, nullLogger(), opts)
	f.svc.now = f.clock.Now
	f.svc.sleep = f.sleeps.sleep
	return f
}

func setupRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

// threeRides returns rides on the three days before testNow
func threeRides() []strava.Activity {
	return []strava.Activity{
		ride(1, testNow.Add(-72*time.Hour), 40000, 5400),
		ride(2, testNow.Add(-48*time.Hour), 60000, 7200),
		ride(3, testNow.Add(-24*time.Hour), 25000, 3600),
	}
}

func ridesN(n int) []strava.Activity {
	out := make([]strava.Activity, n)
	for i := range out {
		out[i] = ride(int64(i+1), testNow.Add(-time.Duration(n-i)*time.Hour), 20000, 3600)
	}
	return out
}

func trackStreams(n int) *strava.Streams {
	s := &strava.Streams{
		LatLng:   &strava.StreamData[[2]float64]{},
		Altitude: &strava.StreamData[float64]{},
		Time:     &strava.StreamData[int]{},
	}
	for i := 0; i < n; i++ {
		s.LatLng.Data = append(s.LatLng.Data, [2]float64{45 + float64(i)/1000, 6})
		s.Altitude.Data = append(s.Altitude.Data, 500+float64(i))
		s.Time.Data = append(s.Time.Data, i)
	}
	return s
}

func TestRunSyncFullImport(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")

	f.feed.activities["token-u1"] = threeRides()
	f.feed.streams[2] = trackStreams(12)
	f.feed.details[1] = &strava.ActivityDetail{
		Activity: strava.Activity{ID: 1, DeviceName: "Edge 830"},
		SegmentEfforts: []strava.SegmentEffort{
			{ID: 10, ElapsedTime: 300, Segment: strava.Segment{ID: 7, Name: "Col"}},
			{ID: 11, ElapsedTime: 280, Segment: strava.Segment{ID: 7, Name: "Col"}},
			{ID: 12, ElapsedTime: 100, Segment: strava.Segment{ID: 3, Name: "Sprint", StartLatLng: []float64{45, 6}}},
		},
		Raw: []byte(`{"id":1}`),
	}

	res, err := f.svc.RunSync(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}

	if res.Mode != ModeFull {
		t.Errorf("expected full mode, got %s", res.Mode)
	}
	if !res.Completed {
		t.Error("expected completed run")
	}
	if res.ActivitiesImported != 3 {
		t.Errorf("expected 3 imported, got %d", res.ActivitiesImported)
	}
	if res.TrackPointsStored != 3 {
		t.Errorf("expected 3 track points, got %d", res.TrackPointsStored)
	}
	if res.SegmentEffortsStored != 2 {
		t.Errorf("expected 2 segment efforts, got %d", res.SegmentEffortsStored)
	}
	if !f.feed.afters[0].IsZero() {
		t.Errorf("full sync should not filter by date, got %v", f.feed.afters[0])
	}
	if got := f.sleeps.count(350 * time.Millisecond); got != 3 {
		t.Errorf("expected 3 pacing delays, got %d", got)
	}

	st := getState(t, f.store, "u1")
	if !st.InitialSyncDone {
		t.Error("expected initial sync done")
	}
	if st.LastFullSync == nil || !st.LastFullSync.Equal(testNow) {
		t.Errorf("expected watermark %v, got %v", testNow, st.LastFullSync)
	}
	if st.ResumePage != 0 {
		t.Errorf("expected no resume page, got %d", st.ResumePage)
	}

	points, err := f.store.GetTrackPoints(ctx, "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	var seqs []int
	for _, p := range points {
		seqs = append(seqs, p.Seq)
	}
	if fmt.Sprint(seqs) != "[0 5 10]" {
		t.Errorf("expected every 5th sample, got %v", seqs)
	}

	efforts, err := f.store.ListSegmentEfforts(ctx, "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(efforts) != 2 || efforts[0].SegmentID != 3 || efforts[1].SegmentID != 7 {
		t.Fatalf("unexpected efforts: %+v", efforts)
	}
	if *efforts[1].ElapsedTime != 280 {
		t.Errorf("expected best effort 280s, got %d", *efforts[1].ElapsedTime)
	}

	activities, err := f.store.GetActivitiesForUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if activities[0].DeviceName != "Edge 830" || activities[0].RawDetail != `{"id":1}` {
		t.Errorf("detail not merged: %+v", activities[0])
	}
	if activities[1].DistanceKm != 60 {
		t.Errorf("expected 60 km, got %v", activities[1].DistanceKm)
	}
}

func TestRunSyncSecondRunImportsNothing(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = threeRides()

	if _, err := f.svc.RunSync(ctx, Session{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	res, err := f.svc.RunSync(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Mode != ModeIncremental {
		t.Errorf("expected incremental mode, got %s", res.Mode)
	}
	if res.ActivitiesImported != 0 || res.ActivitiesSkipped != 3 {
		t.Errorf("expected 0 imported and 3 skipped, got %d and %d", res.ActivitiesImported, res.ActivitiesSkipped)
	}
	if f.feed.detailCalls[1] != 1 {
		t.Errorf("known activity fetched again: %d detail calls", f.feed.detailCalls[1])
	}
	if !f.feed.afters[1].Equal(testNow) {
		t.Errorf("expected watermark filter %v, got %v", testNow, f.feed.afters[1])
	}

	st := getState(t, f.store, "u1")
	if !st.LastFullSync.Equal(testNow.Add(time.Hour)) {
		t.Errorf("watermark did not advance: %v", st.LastFullSync)
	}
}

func TestSyncIfNeededSkipsRecentSync(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = threeRides()

	if _, err := f.svc.SyncIfNeeded(ctx, Session{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	res, err := f.svc.SyncIfNeeded(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != ModeUpToDate {
		t.Errorf("expected up to date, got %s", res.Mode)
	}
	if len(f.feed.pages) != 1 {
		t.Errorf("expected no listing for a fresh sync, got pages %v", f.feed.pages)
	}

	f.clock.Advance(2 * time.Hour)
	res, err = f.svc.SyncIfNeeded(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != ModeIncremental {
		t.Errorf("expected incremental after the threshold, got %s", res.Mode)
	}
}

func TestRunSyncPagination(t *testing.T) {
	tests := []struct {
		name       string
		activities int
		pageSize   int
		wantPages  []int
	}{
		{"empty", 0, 2, []int{1}},
		{"short last page", 3, 2, []int{1, 2}},
		{"exact multiple", 4, 2, []int{1, 2, 3}},
		{"single page", 5, 50, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultSyncOptions()
			opts.PageSize = tt.pageSize
			f := setupSync(t, opts, nil)
			connectUser(t, f.store, "u1")
			f.feed.activities["token-u1"] = ridesN(tt.activities)

			res, err := f.svc.RunSync(context.Background(), Session{UserID: "u1"})
			if err != nil {
				t.Fatal(err)
			}
			if fmt.Sprint(f.feed.pages) != fmt.Sprint(tt.wantPages) {
				t.Errorf("expected pages %v, got %v", tt.wantPages, f.feed.pages)
			}
			if res.ActivitiesImported != tt.activities {
				t.Errorf("expected %d imported, got %d", tt.activities, res.ActivitiesImported)
			}
		})
	}
}

func TestScheduledSyncRateLimitResumes(t *testing.T) {
	c, mr := setupRedis(t)
	opts := DefaultSyncOptions()
	opts.PageSize = 2
	f := setupSync(t, opts, c)
	ctx := context.Background()

	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = ridesN(5)
	f.feed.pageErrs[2] = []error{strava.ErrRateLimited}

	batch, err := f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Users) != 1 || batch.Users[0].Result == nil {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	res := batch.Users[0].Result
	if !res.RateLimited || res.Completed {
		t.Errorf("expected rate limited partial run, got %+v", res)
	}
	if res.ResumePage != 2 || res.ActivitiesImported != 2 {
		t.Errorf("expected resume at page 2 after 2 imports, got page %d and %d imports", res.ResumePage, res.ActivitiesImported)
	}
	if f.sleeps.count(opts.RateLimitCooldown) != 0 {
		t.Error("batch run must not sleep through a rate limit")
	}

	st := getState(t, f.store, "u1")
	if st.InitialSyncDone || st.LastFullSync != nil {
		t.Errorf("watermark must not advance on an aborted run: %+v", st)
	}
	if st.ResumePage != 2 {
		t.Errorf("expected stored resume page 2, got %d", st.ResumePage)
	}

	batch, err = f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Users[0].Skipped {
		t.Error("expected user to be skipped during cooldown")
	}

	mr.FastForward(16 * time.Minute)
	f.feed.pages = nil

	batch, err = f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	res = batch.Users[0].Result
	if res == nil || !res.Completed {
		t.Fatalf("expected completed run after cooldown, got %+v", batch.Users[0])
	}
	if fmt.Sprint(f.feed.pages) != "[2 3]" {
		t.Errorf("expected paging to resume at 2, got %v", f.feed.pages)
	}

	n, err := f.store.CountActivities(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("expected 5 activities, got %d", n)
	}
	st = getState(t, f.store, "u1")
	if !st.InitialSyncDone || st.ResumePage != 0 {
		t.Errorf("expected completed state, got %+v", st)
	}
}

func TestResumedSyncKeepsEarlierWatermark(t *testing.T) {
	opts := DefaultSyncOptions()
	opts.PageSize = 2
	f := setupSync(t, opts, nil)
	f.feed.stravaOrder = true
	ctx := context.Background()

	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = ridesN(4)
	f.feed.pageErrs[2] = []error{strava.ErrRateLimited}

	batch, err := f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res := batch.Users[0].Result; !res.RateLimited || res.ActivitiesImported != 2 {
		t.Fatalf("expected rate limited run with 2 imports, got %+v", res)
	}
	st := getState(t, f.store, "u1")
	if st.ResumeSince == nil || !st.ResumeSince.Equal(testNow) {
		t.Errorf("expected resume since %v, got %v", testNow, st.ResumeSince)
	}

	// a ride recorded while the run is paused lands on page 1
	f.clock.Advance(30 * time.Minute)
	f.feed.activities["token-u1"] = append(f.feed.activities["token-u1"], ride(99, f.clock.Now(), 30000, 3600))
	f.clock.Advance(30 * time.Minute)

	batch, err = f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res := batch.Users[0].Result; !res.Completed || res.ActivitiesImported != 2 {
		t.Fatalf("expected resumed run to import the 2 older rides, got %+v", res)
	}
	st = getState(t, f.store, "u1")
	if st.LastFullSync == nil || !st.LastFullSync.Equal(testNow) {
		t.Errorf("expected watermark at the first run's start %v, got %v", testNow, st.LastFullSync)
	}
	if st.ResumeSince != nil || st.ResumePage != 0 {
		t.Errorf("expected resume point cleared, got page %d since %v", st.ResumePage, st.ResumeSince)
	}

	f.clock.Advance(time.Hour)
	batch, err = f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	res := batch.Users[0].Result
	if res.Mode != ModeIncremental || res.ActivitiesImported != 1 {
		t.Errorf("expected incremental run importing 1 ride, got %+v", res)
	}

	ids, err := f.store.ExistingRemoteIDs(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids[99]; !ok || len(ids) != 5 {
		t.Errorf("expected all 5 rides stored, got %v", ids)
	}
}

func TestRunSyncInteractiveCooldown(t *testing.T) {
	tests := []struct {
		name          string
		limits        int
		wantCompleted bool
		wantSleeps    int
	}{
		{"one rate limit", 1, true, 1},
		{"retries exhausted", 3, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupSync(t, DefaultSyncOptions(), nil)
			connectUser(t, f.store, "u1")
			f.feed.activities["token-u1"] = threeRides()
			for i := 0; i < tt.limits; i++ {
				f.feed.pageErrs[1] = append(f.feed.pageErrs[1], strava.ErrRateLimited)
			}

			res, err := f.svc.RunSync(context.Background(), Session{UserID: "u1"})
			if err != nil {
				t.Fatalf("rate limit should not fail the run: %v", err)
			}
			if res.Completed != tt.wantCompleted {
				t.Errorf("expected completed=%v, got %v", tt.wantCompleted, res.Completed)
			}
			if res.RateLimited == tt.wantCompleted {
				t.Errorf("expected rate_limited=%v", !tt.wantCompleted)
			}
			if got := f.sleeps.count(15 * time.Minute); got != tt.wantSleeps {
				t.Errorf("expected %d cooldowns, got %d", tt.wantSleeps, got)
			}
		})
	}
}

func TestRunSyncDetailFailureKeepsActivity(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = threeRides()
	f.feed.detailErrs[2] = &strava.APIError{StatusCode: 500, Body: "boom"}
	f.feed.streamErrs[3] = &strava.APIError{StatusCode: 404}

	res, err := f.svc.RunSync(context.Background(), Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ActivitiesImported != 3 {
		t.Errorf("expected 3 imported, got %d", res.ActivitiesImported)
	}
	if len(res.Errors) != 2 || len(res.ErrorMessages) != 2 {
		t.Errorf("expected 2 item errors, got %v", res.ErrorMessages)
	}
	if !res.Completed {
		t.Error("enrichment failures must not abort the run")
	}
}

func TestScheduledSyncEnrichmentRateLimitKeepsBaseRecord(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = threeRides()
	f.feed.streamErrs[2] = strava.ErrRateLimited

	batch, err := f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	res := batch.Users[0].Result
	if !res.RateLimited {
		t.Error("expected rate limited run")
	}

	ids, err := f.store.ExistingRemoteIDs(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids[2]; !ok {
		t.Error("activity 2 should be stored before the abort")
	}
	if _, ok := ids[3]; ok {
		t.Error("activity 3 should not be imported after the abort")
	}
}

func TestRunSyncUnauthorized(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	connectUser(t, f.store, "u1")
	f.feed.tokenErrs["token-u1"] = strava.ErrUnauthorized

	_, err := f.svc.RunSync(context.Background(), Session{UserID: "u1"})
	if !errors.Is(err, ErrReconnectRequired) {
		t.Fatalf("expected ErrReconnectRequired, got %v", err)
	}
	if ErrorKind(err) != "reconnect_required" {
		t.Errorf("unexpected kind %q", ErrorKind(err))
	}
	if f.notifier.count(EventSyncFailed) != 1 {
		t.Errorf("expected one failure notification, got %v", f.notifier.kinds())
	}
}

func TestRunSyncRefreshesExpiredToken(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")

	soon := testNow.Add(30 * time.Second)
	if err := f.store.UpdateSyncState(ctx, "u1", store.SyncStatePatch{ExpiresAt: &soon}); err != nil {
		t.Fatal(err)
	}

	refresher := &fakeRefresher{tok: &oauth2.Token{
		AccessToken:  "fresh",
		RefreshToken: "refresh-2",
		Expiry:       testNow.Add(6 * time.Hour),
	}}
	f.svc.refresher = refresher
	f.feed.activities["fresh"] = threeRides()[:1]

	res, err := f.svc.RunSync(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if refresher.calls != 1 {
		t.Errorf("expected one refresh, got %d", refresher.calls)
	}
	if res.ActivitiesImported != 1 {
		t.Errorf("expected the refreshed token to be used, imported %d", res.ActivitiesImported)
	}

	st := getState(t, f.store, "u1")
	if st.AccessToken != "fresh" || st.RefreshToken != "refresh-2" {
		t.Errorf("refreshed credentials not stored: %+v", st)
	}
}

func TestRunSyncRejectedRefresh(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")

	past := testNow.Add(-time.Minute)
	if err := f.store.UpdateSyncState(ctx, "u1", store.SyncStatePatch{ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}
	f.svc.refresher = &fakeRefresher{err: fmt.Errorf("%w: invalid_grant", auth.ErrInvalidGrant)}

	_, err := f.svc.RunSync(ctx, Session{UserID: "u1"})
	if !errors.Is(err, ErrReconnectRequired) {
		t.Fatalf("expected ErrReconnectRequired, got %v", err)
	}
	if len(f.feed.pages) != 0 {
		t.Errorf("no feed call expected without a token, got %v", f.feed.pages)
	}
}

func TestRunSyncErrors(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)

	if _, err := f.svc.RunSync(context.Background(), Session{}); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser, got %v", err)
	}
	if _, err := f.svc.RunSync(context.Background(), Session{UserID: "ghost"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestScheduledSyncIsolatesUsers(t *testing.T) {
	f := setupSync(t, DefaultSyncOptions(), nil)
	ctx := context.Background()
	connectUser(t, f.store, "u1")
	connectUser(t, f.store, "u2")
	f.feed.tokenErrs["token-u1"] = strava.ErrUnauthorized
	f.feed.activities["token-u2"] = threeRides()[:2]

	batch, err := f.svc.RunScheduledSyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Failed != 1 {
		t.Errorf("expected 1 failed user, got %d", batch.Failed)
	}

	byUser := make(map[string]UserOutcome)
	for _, u := range batch.Users {
		byUser[u.UserID] = u
	}
	if byUser["u1"].ErrorKind != "reconnect_required" {
		t.Errorf("unexpected u1 outcome: %+v", byUser["u1"])
	}
	if r := byUser["u2"].Result; r == nil || r.ActivitiesImported != 2 {
		t.Errorf("u2 should sync despite u1 failing: %+v", byUser["u2"])
	}
}

func TestLastResultIsCached(t *testing.T) {
	c, _ := setupRedis(t)
	f := setupSync(t, DefaultSyncOptions(), c)
	ctx := context.Background()
	connectUser(t, f.store, "u1")
	f.feed.activities["token-u1"] = threeRides()
	f.feed.detailErrs[1] = &strava.APIError{StatusCode: 502}

	if _, err := f.svc.RunSync(ctx, Session{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	res, ok, err := f.svc.LastResult(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a cached result")
	}
	if res.ActivitiesImported != 3 || len(res.ErrorMessages) != 1 {
		t.Errorf("unexpected cached result: %+v", res)
	}
}

func TestDetermineMode(t *testing.T) {
	recent := testNow.Add(-time.Hour)
	old := testNow.Add(-3 * time.Hour)

	tests := []struct {
		name      string
		state     store.SyncState
		threshold time.Duration
		want      Mode
	}{
		{"never synced", store.SyncState{}, 2 * time.Hour, ModeFull},
		{"done without watermark", store.SyncState{InitialSyncDone: true}, 0, ModeFull},
		{"recent", store.SyncState{InitialSyncDone: true, LastFullSync: &recent}, 2 * time.Hour, ModeUpToDate},
		{"recent interactive", store.SyncState{InitialSyncDone: true, LastFullSync: &recent}, 0, ModeIncremental},
		{"stale", store.SyncState{InitialSyncDone: true, LastFullSync: &old}, 2 * time.Hour, ModeIncremental},
		{"pending resume", store.SyncState{InitialSyncDone: true, LastFullSync: &recent, ResumePage: 3}, 2 * time.Hour, ModeIncremental},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineMode(&tt.state, testNow, tt.threshold); got != tt.want {
				t.Errorf("DetermineMode() = %s, want %s", got, tt.want)
			}
		})
	}
}
