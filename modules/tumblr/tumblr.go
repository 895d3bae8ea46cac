// Package tumblr 根据标签随机回复一张 Tumblr 图片。
//
// 指令形如 "tumblr cats" 或 "tumblr of cats"。模块随机抽取三个时间点，
// 各取一页标签结果，合并后等概率选出一条图片帖子。
package tumblr

import (
	"context"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/logger"
	"github.com/lk2023060901/norbert/pkg/module"
)

const (
	// ConfigPath 模块配置的相对路径
	ConfigPath = "Tumblr/Config.json"

	apiURL    = "http://api.tumblr.com/v2/tagged"
	pages     = 3
	pageLimit = 5

	replyNotFound = "Whoops, no tumblrs found"
	replyFailed   = "Whoops, something went wrong"
)

var (
	pattern   = regexp.MustCompile(`tumblr\s*(?:of\s*)?(?P<tag>.*)`)
	tagIndex  = pattern.SubexpIndex("tag")
	minBefore = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
)

func init() {
	module.MustRegister("tumblr", New)
}

// Config 模块配置
type Config struct {
	APIKey string `json:"ApiKey"`
}

type post struct {
	Type     string `json:"type"`
	ShortURL string `json:"short_url"`
}

type taggedResponse struct {
	Response []post `json:"response"`
}

// Tumblr 标签查图模块，未配置 api key 时保持加载但不响应
type Tumblr struct {
	apiKey string
	chat   capability.ChatClient
	http   capability.HTTPService
	clock  clock.Clock
	log    logger.Logger

	mu   sync.Mutex
	intn func(n int) int
}

// New 创建模块实例
func New() module.Module {
	return &Tumblr{intn: rand.IntN}
}

// Activate 读取 api key 并订阅消息
func (t *Tumblr) Activate(_ context.Context, caps capability.Set) error {
	caps = caps.WithDefaults()
	t.chat = caps.Chat
	t.http = caps.HTTP
	t.clock = caps.Clock
	t.log = caps.Logger

	cfg, err := capability.LoadConfig[Config](caps.Config, ConfigPath)
	if err != nil {
		t.log.Error("load tumblr config failed", logger.Err(err))
	}
	t.apiKey = strings.TrimSpace(cfg.APIKey)
	if t.apiKey == "" {
		t.log.Warn("no api key specified, tumblr lookups disabled")
	} else {
		t.log.Info("using api key from config", logger.Fields("path", ConfigPath)...)
	}

	t.chat.Subscribe(t.OnMessage)
	return nil
}

// Enabled 是否配置了 api key
func (t *Tumblr) Enabled() bool {
	return t.apiKey != ""
}

// OnMessage 处理 tumblr 指令
func (t *Tumblr) OnMessage(ctx context.Context, msg chat.Message) {
	if msg.IsPrivate || !msg.IsCommand {
		return
	}
	if !t.Enabled() {
		return
	}

	tag, ok := parseTag(msg.Text)
	if !ok {
		return
	}

	ctx = logger.ContextWith(ctx, logger.Field{Key: "tag", Value: tag})
	t.log.DebugContext(ctx, "looking up tumblr")

	reply := replyNotFound
	shortURL, err := t.randomPost(ctx, tag)
	switch {
	case err != nil:
		t.log.WarnContext(ctx, "tumblr lookup failed", logger.Err(err))
		reply = replyFailed
	case shortURL != "":
		reply = msg.Nick + ": " + shortURL
	}

	if err := t.chat.SendMessage(ctx, reply, msg.Source); err != nil {
		t.log.WarnContext(ctx, "send tumblr reply failed", logger.Err(err))
	}
}

// Deactivate 模块不持有需要释放的资源
func (t *Tumblr) Deactivate(context.Context) error {
	return nil
}

// parseTag 提取指令中的标签，未匹配或标签为空时返回 false
func parseTag(text string) (string, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	tag := strings.TrimSpace(m[tagIndex])
	return tag, tag != ""
}

// randomPost 并发拉取三页，按页序合并后等概率选一条；无结果返回空字符串
func (t *Tumblr) randomPost(ctx context.Context, tag string) (string, error) {
	var befores [pages]time.Time
	for i := range befores {
		befores[i] = t.randomBefore()
	}

	var results [pages][]post
	g, gctx := errgroup.WithContext(ctx)
	for i := range befores {
		g.Go(func() error {
			posts, err := t.fetchPage(gctx, tag, befores[i])
			if err != nil {
				return err
			}
			results[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var all []post
	for _, page := range results {
		all = append(all, page...)
	}
	if len(all) == 0 {
		return "", nil
	}
	return all[t.randN(len(all))].ShortURL, nil
}

// randomBefore 在 2010-01-01 到今天之间随机取一天
func (t *Tumblr) randomBefore() time.Time {
	today := t.clock.Now().UTC()
	days := int(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).Sub(minBefore).Hours() / 24)
	if days <= 0 {
		return minBefore
	}
	return minBefore.AddDate(0, 0, t.randN(days))
}

func (t *Tumblr) randN(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.intn(n)
}

// fetchPage 拉取一页，只保留带短链接的图片帖子
func (t *Tumblr) fetchPage(ctx context.Context, tag string, before time.Time) ([]post, error) {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("tag", tag)
	q.Set("before", strconv.FormatInt(before.Unix(), 10))
	q.Set("limit", strconv.Itoa(pageLimit))

	var resp taggedResponse
	if err := t.http.GetJSON(ctx, apiURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	photos := make([]post, 0, len(resp.Response))
	for _, p := range resp.Response {
		if p.Type == "photo" && p.ShortURL != "" {
			photos = append(photos, p)
		}
	}
	return photos, nil
}
