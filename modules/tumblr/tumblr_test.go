package tumblr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/module"
)

type sent struct {
	text, destination string
}

type fakeChat struct {
	mu       sync.Mutex
	handlers []chat.Handler
	sent     []sent
}

func (f *fakeChat) Subscribe(h chat.Handler, _ ...chat.SubscribeOption) func() {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeChat) SendMessage(_ context.Context, text, destination string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sent{text: text, destination: destination})
	f.mu.Unlock()
	return nil
}

func (f *fakeChat) JoinChannel(context.Context, string) error { return nil }

func (f *fakeChat) replies() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type staticLoader struct {
	cfg *Config
}

func (l staticLoader) Load(relPath string, out any) error {
	if l.cfg == nil {
		return &capability.ConfigLoadError{Path: relPath, Err: errors.New("file not found")}
	}
	*(out.(*Config)) = *l.cfg
	return nil
}

// fakeHTTP 按调用序号返回页面
type fakeHTTP struct {
	mu    sync.Mutex
	uris  []string
	calls *atomic.Int32
	page  func(n int) (taggedResponse, error)
	// byDay 非空时按 before 相对 2010-01-01 的天数返回页面
	byDay func(day int) taggedResponse
}

func (f *fakeHTTP) GetJSON(_ context.Context, uri string, out any) error {
	n := int(f.calls.Inc()) - 1
	f.mu.Lock()
	f.uris = append(f.uris, uri)
	f.mu.Unlock()

	if f.byDay != nil {
		u, err := url.Parse(uri)
		if err != nil {
			return err
		}
		before, err := strconv.ParseInt(u.Query().Get("before"), 10, 64)
		if err != nil {
			return err
		}
		*(out.(*taggedResponse)) = f.byDay(int((before - minBefore.Unix()) / 86400))
		return nil
	}
	resp, err := f.page(n)
	if err != nil {
		return err
	}
	*(out.(*taggedResponse)) = resp
	return nil
}

type harness struct {
	mod   *Tumblr
	chat  *fakeChat
	http  *fakeHTTP
	draws []int
}

var today = time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)

func newHarness(t *testing.T, cfg *Config, page func(n int) (taggedResponse, error)) *harness {
	t.Helper()
	h := &harness{
		chat: &fakeChat{},
		http: &fakeHTTP{calls: atomic.NewInt32(0), page: page},
	}
	h.mod = New().(*Tumblr)
	var mu sync.Mutex
	h.mod.intn = func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		h.draws = append(h.draws, n)
		return n - 1
	}

	err := h.mod.Activate(context.Background(), capability.Set{
		Config: staticLoader{cfg: cfg},
		Files:  nil,
		Chat:   h.chat,
		HTTP:   h.http,
		Clock:  clock.NewFixed(today),
	})
	require.NoError(t, err)
	require.Len(t, h.chat.handlers, 1)
	return h
}

func (h *harness) deliver(text string, private, command bool) {
	msg := chat.NewMessage(text, "alice", "#norbert", private, command, today)
	if private {
		msg.Source = "alice"
	}
	h.chat.handlers[0](context.Background(), msg)
}

func photos(n int, urls ...string) taggedResponse {
	var resp taggedResponse
	for _, u := range urls {
		resp.Response = append(resp.Response, post{Type: "photo", ShortURL: u})
	}
	resp.Response = append(resp.Response, post{Type: "text", ShortURL: fmt.Sprintf("http://tmblr.co/text-%d", n)})
	return resp
}

func TestRegisteredInDefaultCatalog(t *testing.T) {
	f, ok := module.Default().Lookup("tumblr")
	require.True(t, ok)
	assert.Equal(t, "Tumblr", module.Name(f()))
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		text string
		tag  string
		ok   bool
	}{
		{text: "tumblr cats", tag: "cats", ok: true},
		{text: "tumblr of cats", tag: "cats", ok: true},
		{text: "tumblrof  red pandas ", tag: "red pandas", ok: true},
		{text: "show me a tumblr of dogs", tag: "dogs", ok: true},
		{text: "tumblr", ok: false},
		{text: "tumblr of   ", ok: false},
		{text: "flickr cats", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tag, ok := parseTag(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestReplyPicksFromAllPages(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
		return photos(n, fmt.Sprintf("http://tmblr.co/%d-a", n), fmt.Sprintf("http://tmblr.co/%d-b", n)), nil
	})

	h.deliver("tumblr of cats", false, true)

	replies := h.chat.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "#norbert", replies[0].destination)

	var candidates []string
	for n := 0; n < 3; n++ {
		candidates = append(candidates,
			fmt.Sprintf("alice: http://tmblr.co/%d-a", n),
			fmt.Sprintf("alice: http://tmblr.co/%d-b", n))
	}
	assert.Contains(t, candidates, replies[0].text)

	// 三次取日期，一次在 6 条图片中选择
	days := int(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Sub(minBefore).Hours() / 24)
	assert.Equal(t, []int{days, days, days, 6}, h.draws)
	assert.EqualValues(t, 3, h.http.calls.Load())
}

func TestReplyPicksAcrossPagesWithDuplicates(t *testing.T) {
	const (
		a = "http://tmblr.co/a"
		b = "http://tmblr.co/b"
		c = "http://tmblr.co/c"
	)
	// 按页序合并后为 [a b b c c a]
	pages := map[int]taggedResponse{
		0: photos(0, a, b),
		1: photos(1, b, c),
		2: photos(2, c, a),
	}
	tests := []struct {
		pick int
		want string
	}{
		{pick: 0, want: a},
		{pick: 1, want: b},
		{pick: 3, want: c},
		{pick: 5, want: a},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("pick %d", tt.pick), func(t *testing.T) {
			h := newHarness(t, &Config{APIKey: "k"}, nil)
			h.http.byDay = func(day int) taggedResponse { return pages[day] }

			// 前三次为各页日期偏移 0、1、2，最后一次为候选下标
			draws := 0
			h.mod.intn = func(n int) int {
				defer func() { draws++ }()
				if draws < 3 {
					return draws
				}
				assert.Equal(t, 6, n)
				return tt.pick
			}

			h.deliver("tumblr cats", false, true)

			assert.Equal(t, []sent{{text: "alice: " + tt.want, destination: "#norbert"}}, h.chat.replies())
		})
	}
}

func TestPhotosWithoutShortURLAreSkipped(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
		resp := photos(n, "")
		if n == 1 {
			resp.Response = append(resp.Response, post{Type: "photo", ShortURL: "http://tmblr.co/only"})
		}
		return resp, nil
	})

	h.deliver("tumblr cats", false, true)

	assert.Equal(t, []sent{{text: "alice: http://tmblr.co/only", destination: "#norbert"}}, h.chat.replies())
	assert.Equal(t, 1, h.draws[len(h.draws)-1])
}

func TestPhotosAllWithoutShortURLReplyNotFound(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
		return photos(n, "", ""), nil
	})

	h.deliver("tumblr cats", false, true)

	assert.Equal(t, []sent{{text: "Whoops, no tumblrs found", destination: "#norbert"}}, h.chat.replies())
}

func TestRequestShape(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "secret key"}, func(int) (taggedResponse, error) {
		return taggedResponse{}, nil
	})

	h.deliver("tumblr red pandas", false, true)

	require.Len(t, h.http.uris, 3)
	wantBefore := minBefore.AddDate(0, 0, 5112).Unix()
	for _, raw := range h.http.uris {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "api.tumblr.com", u.Host)
		assert.Equal(t, "/v2/tagged", u.Path)
		q := u.Query()
		assert.Equal(t, "secret key", q.Get("api_key"))
		assert.Equal(t, "red pandas", q.Get("tag"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, fmt.Sprint(wantBefore), q.Get("before"))
	}
}

func TestReplyNotFound(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
		return photos(n), nil
	})

	h.deliver("tumblr cats", false, true)

	assert.Equal(t, []sent{{text: "Whoops, no tumblrs found", destination: "#norbert"}}, h.chat.replies())
}

func TestReplyOnFetchFailure(t *testing.T) {
	for failing := 0; failing < 3; failing++ {
		t.Run(fmt.Sprintf("page %d fails", failing), func(t *testing.T) {
			h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
				if n == failing {
					return taggedResponse{}, &capability.HTTPServiceError{URI: "x", StatusCode: 500, Err: errors.New("boom")}
				}
				return photos(n, "http://tmblr.co/ok"), nil
			})

			h.deliver("tumblr cats", false, true)

			assert.Equal(t, []sent{{text: "Whoops, something went wrong", destination: "#norbert"}}, h.chat.replies())
		})
	}
}

func TestIgnoredMessages(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
		return photos(n, "http://tmblr.co/x"), nil
	})

	h.deliver("tumblr cats", true, true)
	h.deliver("tumblr cats", false, false)
	h.deliver("weather in Oslo", false, true)
	h.deliver("tumblr of ", false, true)

	assert.Empty(t, h.chat.replies())
	assert.Zero(t, h.http.calls.Load())
}

func TestMissingConfigDisablesModule(t *testing.T) {
	for name, cfg := range map[string]*Config{"missing file": nil, "blank key": {APIKey: "  "}} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, cfg, func(n int) (taggedResponse, error) {
				return photos(n, "http://tmblr.co/x"), nil
			})
			assert.False(t, h.mod.Enabled())

			h.deliver("tumblr cats", false, true)
			assert.Empty(t, h.chat.replies())
			assert.Zero(t, h.http.calls.Load())
			assert.NoError(t, h.mod.Deactivate(context.Background()))
		})
	}
}

func TestConcurrentCommands(t *testing.T) {
	h := newHarness(t, &Config{APIKey: "k"}, func(n int) (taggedResponse, error) {
		return photos(n, "http://tmblr.co/x"), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.deliver("tumblr cats", false, true)
		}()
	}
	wg.Wait()

	replies := h.chat.replies()
	require.Len(t, replies, 8)
	for _, r := range replies {
		assert.Equal(t, "alice: http://tmblr.co/x", r.text)
	}
}
