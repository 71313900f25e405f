package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/vidurl/config"
	"github.com/use-agent/vidurl/models"
)

// fakePage is a deterministic stand-in for a browser page. Behaviour is
// keyed by the URL most recently navigated to.
type fakePage struct {
	mu sync.Mutex

	sources  map[string]string // page URL -> video source
	navErr   map[string]error
	waitErr  map[string]error
	waitHang map[string]bool // block WaitElement until ctx is done

	current string
	ua      string
	calls   []string
	waitDL  time.Duration
}

func newFakePage() *fakePage {
	return &fakePage{
		sources:  map[string]string{},
		navErr:   map[string]error{},
		waitErr:  map[string]error{},
		waitHang: map[string]bool{},
	}
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate " + url)
	p.current = url
	return p.navErr[url]
}

func (p *fakePage) SetUserAgent(_ context.Context, ua string) error {
	p.record("ua")
	p.ua = ua
	return nil
}

func (p *fakePage) Reload(context.Context) error {
	p.record("reload")
	return nil
}

func (p *fakePage) WaitElement(ctx context.Context, selector string) error {
	p.record("wait " + selector)
	if dl, ok := ctx.Deadline(); ok {
		p.waitDL = time.Until(dl)
	}
	if p.waitHang[p.current] {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.waitErr[p.current]
}

func (p *fakePage) VideoSource(_ context.Context, selector string) (string, error) {
	p.record("source " + selector)
	return p.sources[p.current], nil
}

func testConfig() config.FetchConfig {
	return config.FetchConfig{
		SiteURL:           "https://www.bilibili.com",
		UserAgent:         config.DefaultUserAgent,
		VideoSelector:     "video",
		NavigationTimeout: time.Second,
		WaitTimeout:       50 * time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_SingleSuccess(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"

	f := New(page, testConfig(), WithLogger(quietLogger()))
	got := f.Run(context.Background(), []string{"BV1"})

	want := `{"BV1":"https://cdn.example/v1.mp4"}`
	if got.String() != want {
		t.Errorf("Run() = %s, want %s", got, want)
	}
}

func TestRun_TimeoutRecordsSentinel(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"
	page.waitHang["https://www.bilibili.com/video/BV2"] = true

	f := New(page, testConfig(), WithLogger(quietLogger()))
	got := f.Run(context.Background(), []string{"BV1", "BV2"})

	want := `{"BV1":"https://cdn.example/v1.mp4","BV2":"获取失败"}`
	if got.String() != want {
		t.Errorf("Run() = %s, want %s", got, want)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	page := newFakePage()
	f := New(page, testConfig(), WithLogger(quietLogger()))

	got := f.Run(context.Background(), nil)

	if got.String() != "{}" {
		t.Errorf("Run(nil) = %s, want {}", got)
	}
	if len(page.calls) != 0 {
		t.Errorf("empty input touched the page: %v", page.calls)
	}
}

func TestRun_FailuresDoNotAbortBatch(t *testing.T) {
	page := newFakePage()
	page.navErr["https://www.bilibili.com/video/BAD"] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	page.waitErr["https://www.bilibili.com/video/GONE"] = errors.New("element not found")
	page.sources["https://www.bilibili.com/video/NOSRC"] = ""
	page.sources["https://www.bilibili.com/video/OK"] = "https://cdn.example/ok.mp4"

	f := New(page, testConfig(), WithLogger(quietLogger()))
	ids := []string{"BAD", "GONE", "NOSRC", "OK"}
	got := f.Run(context.Background(), ids)

	if !reflect.DeepEqual(got.Keys(), ids) {
		t.Fatalf("Keys() = %v, want %v", got.Keys(), ids)
	}
	for _, id := range []string{"BAD", "GONE", "NOSRC"} {
		if v, _ := got.Get(id); v != models.FailureSentinel {
			t.Errorf("%s = %q, want sentinel", id, v)
		}
	}
	if v, _ := got.Get("OK"); v != "https://cdn.example/ok.mp4" {
		t.Errorf("OK = %q", v)
	}

	stats := f.Stats()
	if stats.Processed != 4 || stats.Failures != 3 || stats.Batches != 1 || stats.Busy {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRun_StepOrder(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"
	page.navErr["https://www.bilibili.com/video/BV2"] = errors.New("boom")

	f := New(page, testConfig(), WithLogger(quietLogger()))
	f.Run(context.Background(), []string{"BV1", "BV2"})

	want := []string{
		"navigate https://www.bilibili.com/video/BV1",
		"ua",
		"reload",
		"wait video",
		"source video",
		"navigate https://www.bilibili.com/video/BV2",
	}
	if !reflect.DeepEqual(page.calls, want) {
		t.Errorf("calls =\n%v\nwant\n%v", page.calls, want)
	}
	if page.ua != config.DefaultUserAgent {
		t.Errorf("user agent = %q", page.ua)
	}
}

func TestRun_WaitUsesConfiguredTimeout(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"

	cfg := testConfig()
	cfg.WaitTimeout = 5 * time.Second
	f := New(page, cfg, WithLogger(quietLogger()))
	f.Run(context.Background(), []string{"BV1"})

	if page.waitDL <= 4*time.Second || page.waitDL > 5*time.Second {
		t.Errorf("wait deadline = %s, want about 5s", page.waitDL)
	}
}

func TestRun_Idempotent(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"
	page.sources["https://www.bilibili.com/video/BV3"] = "https://cdn.example/v3.mp4"

	f := New(page, testConfig(), WithLogger(quietLogger()))
	ids := []string{"BV3", "BV2", "BV1"}
	first := f.Run(context.Background(), ids).String()
	second := f.Run(context.Background(), ids).String()

	if first != second {
		t.Errorf("runs differ:\n%s\n%s", first, second)
	}
	want := `{"BV3":"https://cdn.example/v3.mp4","BV2":"获取失败","BV1":"https://cdn.example/v1.mp4"}`
	if first != want {
		t.Errorf("Run() = %s, want %s", first, want)
	}
}

func TestRun_CanceledContextStillCoversEveryID(t *testing.T) {
	page := newFakePage()
	page.waitHang["https://www.bilibili.com/video/BV1"] = true
	page.waitHang["https://www.bilibili.com/video/BV2"] = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(page, testConfig(), WithLogger(quietLogger()))
	got := f.Run(ctx, []string{"BV1", "BV2"})

	if got.Len() != 2 || got.Failed() != 2 {
		t.Errorf("Run() = %s, want both failed", got)
	}
}

func TestRun_ProgressLines(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"

	var out bytes.Buffer
	f := New(page, testConfig(), WithProgress(&out), WithLogger(quietLogger()))
	f.Run(context.Background(), []string{"BV1", "BV2"})

	want := "video BV1: https://cdn.example/v1.mp4\n"
	if out.String() != want {
		t.Errorf("progress = %q, want %q", out.String(), want)
	}
}

func TestRun_LogsFailureWithID(t *testing.T) {
	page := newFakePage()
	page.navErr["https://www.bilibili.com/video/BV9"] = errors.New("connection reset")

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	f := New(page, testConfig(), WithLogger(logger))
	f.Run(context.Background(), []string{"BV9"})

	line := logs.String()
	if !strings.Contains(line, "id=BV9") || !strings.Contains(line, "connection reset") {
		t.Errorf("failure log missing id or detail: %s", line)
	}
	if !strings.Contains(line, models.ErrCodeNavigation) {
		t.Errorf("failure log missing error code: %s", line)
	}
}

func TestRun_DuplicateIDsKeepFirstPosition(t *testing.T) {
	page := newFakePage()
	page.sources["https://www.bilibili.com/video/BV1"] = "https://cdn.example/v1.mp4"
	page.sources["https://www.bilibili.com/video/BV2"] = "https://cdn.example/v2.mp4"

	f := New(page, testConfig(), WithLogger(quietLogger()))
	got := f.Run(context.Background(), []string{"BV1", "BV2", "BV1"})

	if !reflect.DeepEqual(got.Keys(), []string{"BV1", "BV2"}) {
		t.Errorf("Keys() = %v", got.Keys())
	}
	if f.Stats().Processed != 3 {
		t.Errorf("Processed = %d, want 3", f.Stats().Processed)
	}
}

func TestVideoURL(t *testing.T) {
	cfg := testConfig()
	cfg.SiteURL = "https://m.example.com/"
	f := New(newFakePage(), cfg)

	if got := f.VideoURL("BV1xx411c7mD"); got != "https://m.example.com/video/BV1xx411c7mD" {
		t.Errorf("VideoURL() = %q", got)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		wantMsg string
	}{
		{"deadline", context.DeadlineExceeded, models.ErrCodeWaitTimeout, "video element did not appear: timed out"},
		{"canceled", context.Canceled, models.ErrCodeWaitTimeout, "fetch canceled"},
		{"other", errors.New("x"), models.ErrCodeNavigation, "video element did not appear"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categorizeError(tt.err, tt.code, "video element did not appear")
			if got.Code != tt.code || got.Message != tt.wantMsg {
				t.Errorf("categorizeError() = %q/%q", got.Code, got.Message)
			}
			if !errors.Is(got, tt.err) {
				t.Error("original error should stay wrapped")
			}
		})
	}
}
