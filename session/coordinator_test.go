package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
	"go.uber.org/goleak"

	"github.com/use-agent/igextract/fingerprint"
	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/models"
	"github.com/use-agent/igextract/pacing"
)

// fakePage serves canned documents and replays canned responses on
// navigation.
type fakePage struct {
	mu sync.Mutex

	html      map[string]string
	responses map[string][]intercept.Response
	navErr    map[string]error

	current    string
	navigated  []string
	profiles   []fingerprint.Profile
	moves      int
	scrolled   int
	overlays   int
	onRequest  func(intercept.Request)
	onResponse func(intercept.Response)
	closed     bool
}

func newFakePage() *fakePage {
	return &fakePage{
		html:      map[string]string{},
		responses: map[string][]intercept.Response{},
		navErr:    map[string]error{},
	}
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.navigated = append(f.navigated, url)
	err := f.navErr[url]
	resps := f.responses[url]
	f.current = url
	onReq, onResp := f.onRequest, f.onResponse
	f.mu.Unlock()

	if err != nil {
		return err
	}
	for _, r := range resps {
		onReq(intercept.Request{URL: r.URL, Method: http.MethodGet})
		onResp(r)
	}
	return nil
}

func (f *fakePage) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.html[f.current]; ok {
		return h, nil
	}
	return "<html><head></head><body></body></html>", nil
}

func (f *fakePage) OnRequest(fn func(intercept.Request))   { f.onRequest = fn }
func (f *fakePage) OnResponse(fn func(intercept.Response)) { f.onResponse = fn }

func (f *fakePage) ExecuteScript(context.Context, string) (gson.JSON, error) {
	return gson.New("complete"), nil
}

func (f *fakePage) Viewport(context.Context) (Viewport, error) {
	return Viewport{Width: 1280, Height: 800}, nil
}

func (f *fakePage) Scroll(_ context.Context, dy int) error {
	f.mu.Lock()
	f.scrolled += dy
	f.mu.Unlock()
	return nil
}

func (f *fakePage) MoveMouse(context.Context, float64, float64) error {
	f.mu.Lock()
	f.moves++
	f.mu.Unlock()
	return nil
}

func (f *fakePage) DismissOverlays(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlays, nil
}

func (f *fakePage) ApplyProfile(_ context.Context, p fingerprint.Profile) error {
	f.mu.Lock()
	f.profiles = append(f.profiles, p)
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Close() error {
	f.closed = true
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	return cfg
}

func newTestCoordinator(t *testing.T, page *fakePage, cfg Config, opts ...Option) *Coordinator {
	t.Helper()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewCoordinator(page, cfg, append([]Option{
		WithClock(func() time.Time { return clock }),
		WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		WithGenerator(fingerprint.NewGenerator(1)),
		WithEngine(pacing.NewEngine(cfg.Pacing, 1)),
	}, opts...)...)
}

// bobGraphQL is a stray GraphQL response carrying another account.
func bobGraphQL() intercept.Response {
	return intercept.Response{
		URL:     "https://www.instagram.com/graphql/query/?doc_id=stray",
		Status:  200,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(`{"data":{"user":{"username":"bob","full_name":"Bob B","edge_followed_by":{"count":900}}}}`),
	}
}

func postHTML(username string) string {
	return `<html><head><meta property="og:type" content="article"></head><body>` +
		`<script type="application/json">{"username":"` + username + `"}</script></body></html>`
}

func TestProcessAll_DiscoversAuthorOnce(t *testing.T) {
	page := newFakePage()
	page.html["https://www.instagram.com/p/AAA/"] = postHTML("bob")
	page.html["https://www.instagram.com/p/BBB/"] = postHTML("bob")

	c := newTestCoordinator(t, page, testConfig())
	res := c.ProcessAll(context.Background(), []string{
		"https://www.instagram.com/p/AAA/",
		"https://www.instagram.com/p/BBB/",
	})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Summary.AdditionalProfilesExtracted)
	assert.Equal(t, 3, res.Summary.TotalExtractions)
	assert.Equal(t, 3, res.Summary.SuccessfulExtractions)
	assert.Equal(t, float64(100), res.Summary.SuccessRate)
	assert.Equal(t, "https://www.instagram.com/bob/", page.navigated[2])
	assert.Equal(t, 2, res.Summary.ContentTypeBreakdown[models.ContentArticle])
	assert.Equal(t, 1, res.Summary.ContentTypeBreakdown[models.ContentProfile])
	require.NotNil(t, res.StealthReport)
	assert.Equal(t, 3, res.StealthReport.Network.TotalRequests)
}

func TestProcessAll_KnownAuthorNotDiscovered(t *testing.T) {
	page := newFakePage()
	page.html["https://www.instagram.com/p/AAA/"] = postHTML("Bob")

	c := newTestCoordinator(t, page, testConfig())
	res := c.ProcessAll(context.Background(), []string{
		"https://www.instagram.com/bob/",
		"https://www.instagram.com/p/AAA/",
	})

	assert.Zero(t, res.Summary.AdditionalProfilesExtracted)
	assert.Len(t, page.navigated, 2)
}

func TestProcessAll_DiscoveryBounded(t *testing.T) {
	page := newFakePage()
	page.html["https://www.instagram.com/p/AAA/"] = postHTML("bob")
	page.html["https://www.instagram.com/p/BBB/"] = postHTML("carol")

	cfg := testConfig()
	cfg.Discovery.MaxProfiles = 1
	c := newTestCoordinator(t, page, cfg)
	res := c.ProcessAll(context.Background(), []string{
		"https://www.instagram.com/p/AAA/",
		"https://www.instagram.com/p/BBB/",
	})
	assert.Equal(t, 1, res.Summary.AdditionalProfilesExtracted)

	cfg.Discovery.Enabled = false
	page2 := newFakePage()
	page2.html["https://www.instagram.com/p/AAA/"] = postHTML("bob")
	res = newTestCoordinator(t, page2, cfg).ProcessAll(context.Background(), []string{"https://www.instagram.com/p/AAA/"})
	assert.Zero(t, res.Summary.AdditionalProfilesExtracted)
}

func TestProcessAll_FailureContinues(t *testing.T) {
	page := newFakePage()
	page.navErr["https://www.instagram.com/broken/"] = errors.New("net::ERR_CONNECTION_RESET")

	c := newTestCoordinator(t, page, testConfig())
	res := c.ProcessAll(context.Background(), []string{
		"https://www.instagram.com/broken/",
		"not a url",
		"https://www.instagram.com/alice/",
	})

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, models.ErrCodeNavigation, res.Errors[0].Code)
	assert.Equal(t, 2, res.Errors[1].Index)
	assert.Equal(t, models.ErrCodeInvalidInput, res.Errors[1].Code)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "https://www.instagram.com/alice/", res.Data[0].URL)
	assert.InDelta(t, 33.33, res.Summary.SuccessRate, 0.01)

	st := c.State()
	assert.Equal(t, 1, st.ConnErrors)
	assert.Zero(t, st.ConsecutiveErrors)
}

func TestProcess_PayloadsScopedToURL(t *testing.T) {
	page := newFakePage()
	page.responses["https://www.instagram.com/alice/"] = []intercept.Response{{
		URL:     "https://www.instagram.com/api/v1/users/web_profile_info/?username=alice",
		Status:  200,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(`{"data":{"user":{"username":"alice","full_name":"Alice A","edge_followed_by":{"count":1500}}}}`),
	}}

	c := newTestCoordinator(t, page, testConfig())
	e, err := c.Process(context.Background(), "https://www.instagram.com/alice/")
	require.NoError(t, err)
	assert.Equal(t, "Alice A", e.FullName)
	require.NotNil(t, e.FollowersCount)
	assert.Equal(t, "1.5K", e.FollowersCount.Display())
	assert.Zero(t, c.Interceptor().Store().Len())

	e, err = c.Process(context.Background(), "https://www.instagram.com/carol/")
	require.NoError(t, err)
	assert.Empty(t, e.FullName)
	assert.Nil(t, e.FollowersCount)
}

func TestProcess_DropsTrafficBetweenURLs(t *testing.T) {
	page := newFakePage()
	c := newTestCoordinator(t, page, testConfig())

	_, err := c.Process(context.Background(), "https://www.instagram.com/p/abc/")
	require.NoError(t, err)

	// Late response from the previous page, delivered while idle.
	page.onResponse(bobGraphQL())
	assert.Zero(t, c.Interceptor().Store().Len())
	assert.Equal(t, int64(1), c.Interceptor().Dropped())

	e, err := c.Process(context.Background(), "https://www.instagram.com/carol/")
	require.NoError(t, err)
	assert.Empty(t, e.Username)
	assert.Empty(t, e.FullName)
	assert.Nil(t, e.FollowersCount)
}

func TestProcess_DropsTrafficDuringPacingDelay(t *testing.T) {
	page := newFakePage()
	cfg := testConfig()
	cfg.AntiDetection = true

	var sleeps int
	c := newTestCoordinator(t, page, cfg, WithSleep(func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 1 {
			page.onResponse(bobGraphQL())
		}
		return ctx.Err()
	}))

	e, err := c.Process(context.Background(), "https://www.instagram.com/carol/")
	require.NoError(t, err)
	assert.Empty(t, e.Username)
	assert.Empty(t, e.FullName)
	assert.Nil(t, e.FollowersCount)
	assert.Equal(t, int64(1), c.Interceptor().Dropped())
}

func TestProcess_SimulatesInteraction(t *testing.T) {
	page := newFakePage()
	page.overlays = 2
	c := newTestCoordinator(t, page, testConfig())

	_, err := c.Process(context.Background(), "https://www.instagram.com/alice/")
	require.NoError(t, err)

	assert.Equal(t, 1200, page.scrolled)
	assert.Positive(t, page.moves)
	require.Len(t, page.profiles, 1)

	st := c.State()
	assert.Equal(t, 2, st.ClickSamples)
	assert.Equal(t, page.moves, st.MouseSamples)
	assert.Positive(t, st.ScrollSamples)
	assert.Equal(t, 3, st.Actions, "overlay click, mouse move, scroll")
}

func TestProcess_AntiDetectionOff(t *testing.T) {
	page := newFakePage()
	cfg := testConfig()
	cfg.AntiDetection = false
	c := newTestCoordinator(t, page, cfg)

	_, err := c.Process(context.Background(), "https://www.instagram.com/alice/")
	require.NoError(t, err)
	assert.Zero(t, page.moves)
	assert.Zero(t, page.scrolled)
	assert.Empty(t, page.profiles)
	assert.False(t, c.StealthReport().Enabled)
}

func TestProcess_RotatesAfterRequestCeiling(t *testing.T) {
	page := newFakePage()
	cfg := testConfig()
	cfg.Pacing.MaxRequests = 2
	c := newTestCoordinator(t, page, cfg)

	for _, u := range []string{"https://www.instagram.com/a/", "https://www.instagram.com/b/", "https://www.instagram.com/c/"} {
		_, err := c.Process(context.Background(), u)
		require.NoError(t, err)
	}

	st := c.State()
	assert.Equal(t, 1, st.Rotations)
	assert.Zero(t, st.Requests)
	assert.Equal(t, 3, st.TotalRequests)
	require.Len(t, page.profiles, 2, "initial profile plus one rotation")
	assert.Equal(t, cfg.Mobile, page.profiles[1].Mobile)
	assert.Equal(t, page.profiles[1], st.Profile)
}

func TestProcess_TimeoutFailsURL(t *testing.T) {
	page := newFakePage()
	cfg := testConfig()
	cfg.AntiDetection = false
	cfg.URLTimeout = time.Millisecond
	c := NewCoordinator(page, cfg,
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		WithGenerator(fingerprint.NewGenerator(1)),
	)

	_, err := c.Process(context.Background(), "https://www.instagram.com/alice/")
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
	assert.Equal(t, StateIdle, c.CurrentState())
}

func TestProcessAll_CanceledContext(t *testing.T) {
	page := newFakePage()
	c := newTestCoordinator(t, page, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.ProcessAll(ctx, []string{"https://www.instagram.com/a/", "https://www.instagram.com/b/"})
	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 2)
	assert.Empty(t, page.navigated)
}

func TestStealthReport_ConcurrentWithRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	page := newFakePage()
	c := newTestCoordinator(t, page, testConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ProcessAll(context.Background(), []string{"https://www.instagram.com/a/", "https://www.instagram.com/b/"})
	}()
	for i := 0; i < 50; i++ {
		r := c.StealthReport()
		assert.True(t, fingerprint.Consistent(c.State().Profile))
		assert.NotEmpty(t, r.Fingerprint.UserAgent)
	}
	<-done
	assert.Equal(t, 2, c.StealthReport().Network.TotalRequests)
}

func TestProfileUsername(t *testing.T) {
	tests := map[string]string{
		"https://www.instagram.com/Alice/":      "alice",
		"https://www.instagram.com/alice":       "alice",
		"https://www.instagram.com/p/AAA/":      "",
		"https://www.instagram.com/reel/AAA/":   "",
		"https://www.instagram.com/explore/":    "",
		"https://www.instagram.com/alice/feed/": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, profileUsername(in), in)
	}
}
