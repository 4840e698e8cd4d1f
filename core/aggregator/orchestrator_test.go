package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"FMEdge/core/breaker"
	"FMEdge/core/dedupe"
	"FMEdge/core/provider"
	"FMEdge/errs"
	"FMEdge/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter 可编程的适配器
type fakeAdapter struct {
	id      model.ProviderID
	timeout time.Duration
	tracks  []model.Track
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeAdapter) ID() model.ProviderID { return f.id }

func (f *fakeAdapter) Timeout() time.Duration {
	if f.timeout == 0 {
		return time.Second
	}
	return f.timeout
}

func (f *fakeAdapter) wait(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAdapter) Search(ctx context.Context, _ string, _, _ int) ([]model.Track, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.tracks, f.err
}

func (f *fakeAdapter) FetchByID(ctx context.Context, id string) (*model.Track, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, t := range f.tracks {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, errs.New(errs.CodeNotFound, errs.WithProvider(string(f.id)))
}

func (f *fakeAdapter) ResolveStream(ctx context.Context, id, _ string) (*model.StreamLocation, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.StreamLocation{URL: "https://cdn/" + id, Provider: f.id}, nil
}

func newOrchestrator(adapters ...provider.Adapter) *Orchestrator {
	return New(provider.NewRegistry(adapters...), breaker.NewRegistry(4, 30*time.Second))
}

func TestSearchConcatenatesInSelectionOrder(t *testing.T) {
	gd := &fakeAdapter{id: model.ProviderGD, tracks: []model.Track{{ID: "g1"}, {ID: "g2"}}}
	kuwo := &fakeAdapter{id: model.ProviderKuwo, tracks: []model.Track{{ID: "k1"}}, delay: 20 * time.Millisecond}
	o := newOrchestrator(gd, kuwo)

	res := o.Search(context.Background(), "love", 1, 10, []model.ProviderID{model.ProviderKuwo, model.ProviderGD})
	ids := make([]string, 0, len(res.Tracks))
	for _, tr := range res.Tracks {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"k1", "g1", "g2"}, ids)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, model.ProviderKuwo, res.Outcomes[0].Provider)
	assert.Equal(t, 1, res.Outcomes[0].Count)
	assert.False(t, res.Failed())
}

func TestSearchToleratesPartialFailure(t *testing.T) {
	ok := &fakeAdapter{id: model.ProviderGD, tracks: []model.Track{{ID: "g1"}}}
	bad := &fakeAdapter{id: model.ProviderIA, err: errors.New("boom")}
	slow := &fakeAdapter{id: model.ProviderJamendo, timeout: 30 * time.Millisecond, delay: time.Second, tracks: []model.Track{{ID: "j1"}}}
	o := newOrchestrator(ok, bad, slow)

	start := time.Now()
	res := o.Search(context.Background(), "x", 1, 10, []model.ProviderID{model.ProviderGD, model.ProviderIA, model.ProviderJamendo})
	assert.Less(t, time.Since(start), 500*time.Millisecond, "slow adapter is cancelled, not awaited")

	require.Len(t, res.Tracks, 1)
	assert.Equal(t, "g1", res.Tracks[0].ID)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.Equal(t, errs.CodeUpstreamFailure, errs.CodeOf(res.Outcomes[1].Err))
	assert.Equal(t, errs.CodeUpstreamTimeout, errs.CodeOf(res.Outcomes[2].Err))
}

func TestFetchTimeoutIsTypedAsUpstreamTimeout(t *testing.T) {
	slow := &fakeAdapter{id: model.ProviderJamendo, timeout: 20 * time.Millisecond, delay: time.Second,
		tracks: []model.Track{{ID: "j1"}}}
	o := newOrchestrator(slow)

	_, err := o.Fetch(context.Background(), model.ProviderJamendo, "j1")
	var e *errs.E
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.CodeUpstreamTimeout, e.Code)
	assert.Equal(t, string(model.ProviderJamendo), e.Provider)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, o.Breakers().For(model.ProviderJamendo).Failures())
}

func TestSearchAllFailedIsEmptyNotError(t *testing.T) {
	o := newOrchestrator(&fakeAdapter{id: model.ProviderGD, err: errors.New("down")})
	res := o.Search(context.Background(), "x", 1, 10, []model.ProviderID{model.ProviderGD})
	assert.NotNil(t, res.Tracks)
	assert.Empty(t, res.Tracks)
	assert.True(t, res.Failed())
}

func TestBreakerOpensAndSkips(t *testing.T) {
	bad := &fakeAdapter{id: model.ProviderGD, err: errors.New("down")}
	o := newOrchestrator(bad)
	ids := []model.ProviderID{model.ProviderGD}

	for i := 0; i < 4; i++ {
		o.Search(context.Background(), "x", 1, 10, ids)
	}
	require.Equal(t, int32(4), bad.calls.Load())
	assert.Equal(t, breaker.Open, o.Breakers().For(model.ProviderGD).State())

	res := o.Search(context.Background(), "x", 1, 10, ids)
	assert.Equal(t, int32(4), bad.calls.Load(), "open breaker must not invoke adapter")
	assert.True(t, res.Outcomes[0].Skipped)
	assert.Equal(t, errs.CodeBreakerOpen, errs.CodeOf(res.Outcomes[0].Err))
}

func TestBreakerHalfOpenTrialAfterCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	bad := &fakeAdapter{id: model.ProviderGD, err: errors.New("down")}
	o := New(provider.NewRegistry(bad), breaker.NewRegistry(4, 30*time.Second, breaker.WithClock(clock)))
	ids := []model.ProviderID{model.ProviderGD}

	for i := 0; i < 4; i++ {
		o.Search(context.Background(), "x", 1, 10, ids)
	}
	now = now.Add(31 * time.Second)
	bad.err = nil
	bad.tracks = []model.Track{{ID: "back"}}

	res := o.Search(context.Background(), "x", 1, 10, ids)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, breaker.Closed, o.Breakers().For(model.ProviderGD).State())
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	gd := &fakeAdapter{id: model.ProviderGD}
	o := newOrchestrator(gd)
	for i := 0; i < 6; i++ {
		_, err := o.Fetch(context.Background(), model.ProviderGD, "missing")
		assert.True(t, errs.Is(err, errs.CodeNotFound))
	}
	assert.Equal(t, breaker.Closed, o.Breakers().For(model.ProviderGD).State())
}

func TestCallerCancellationDoesNotTripBreaker(t *testing.T) {
	slow := &fakeAdapter{id: model.ProviderGD, delay: time.Second}
	o := newOrchestrator(slow)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
		_, err := o.Resolve(ctx, model.ProviderGD, "1", "320")
		assert.Error(t, err)
		cancel()
	}
	assert.Equal(t, 0, o.Breakers().For(model.ProviderGD).Failures())
}

func TestUnknownProvider(t *testing.T) {
	o := newOrchestrator()
	_, err := o.Fetch(context.Background(), model.ProviderAudius, "1")
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestResolve(t *testing.T) {
	o := newOrchestrator(&fakeAdapter{id: model.ProviderIA})
	loc, err := o.Resolve(context.Background(), model.ProviderIA, "item", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/item", loc.URL)
}

func TestSearchThenMergeLoveSong(t *testing.T) {
	a := &fakeAdapter{id: model.ProviderGD, tracks: []model.Track{{
		ID: "a1", SourceID: model.ProviderGD, Title: "Love Song", Artist: "X", DurationSeconds: 200, BitrateKbps: 128,
	}}}
	b := &fakeAdapter{id: model.ProviderKuwo, tracks: []model.Track{{
		ID: "b1", SourceID: model.ProviderKuwo, Title: "love song", Artist: "x", DurationSeconds: 201, BitrateKbps: 320,
	}}}
	o := newOrchestrator(a, b)

	res := o.Search(context.Background(), "love", 1, 10, []model.ProviderID{model.ProviderGD, model.ProviderKuwo})
	merged := dedupe.Merge(res.Tracks, model.DefaultWeights())

	require.Len(t, merged, 1)
	assert.Equal(t, 320, merged[0].BitrateKbps)
}

func TestWorkerLimit(t *testing.T) {
	var adapters []provider.Adapter
	ids := []model.ProviderID{model.ProviderGD, model.ProviderKuwo, model.ProviderIA}
	for _, id := range ids {
		adapters = append(adapters, &fakeAdapter{id: id, tracks: []model.Track{{ID: string(id)}}})
	}
	o := New(provider.NewRegistry(adapters...), breaker.NewRegistry(4, time.Second), WithMaxWorkers(1))
	res := o.Search(context.Background(), "x", 1, 10, ids)
	assert.Len(t, res.Tracks, 3)
}
