// Package irc 通过 IRC 连接实现聊天能力，入站消息发布到分发器。
package irc

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/atomic"

	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/logger"
)

var (
	// ErrNotConnected 尚未连接或已断开
	ErrNotConnected = errors.New("irc: not connected")
	// ErrEmptyDestination 发送目标为空
	ErrEmptyDestination = errors.New("irc: empty destination")
)

// Config 连接参数
type Config struct {
	Server   string
	TLS      bool
	Nick     string
	User     string
	RealName string
	Channels []string
	QuitMsg  string
	// CommandPrefix 频道内的指令前缀
	CommandPrefix string
}

// Dispatcher 入站消息的去向
type Dispatcher interface {
	Subscribe(h chat.Handler, opts ...chat.SubscribeOption) func()
	Publish(ctx context.Context, msg chat.Message) error
}

// session 连接上用到的操作
type session interface {
	Privmsg(target, text string) error
	Join(channel string) error
	CurrentNick() string
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock 设置消息接收时间的时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// Client IRC 聊天客户端，实现 capability.ChatClient
type Client struct {
	cfg   Config
	hub   Dispatcher
	log   logger.Logger
	clock clock.Clock

	conn      *ircevent.Connection
	sess      session
	connected *atomic.Bool

	loopOnce sync.Once
	loopDone chan struct{}
}

// New 创建客户端，Connect 之前不会发起网络连接
func New(cfg Config, hub Dispatcher, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		hub:       hub,
		log:       logger.Nop(),
		connected: atomic.NewBool(false),
		loopDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.MustNew(clock.DefaultConfig())
	}

	user := cfg.User
	if user == "" {
		user = cfg.Nick
	}
	realName := cfg.RealName
	if realName == "" {
		realName = user
	}
	c.conn = &ircevent.Connection{
		Server:      cfg.Server,
		UseTLS:      cfg.TLS,
		Nick:        cfg.Nick,
		User:        user,
		RealName:    realName,
		QuitMessage: cfg.QuitMsg,
		Log:         log.New(logWriter{c.log}, "", 0),
	}
	c.sess = c.conn
	c.conn.AddConnectCallback(c.onConnect)
	c.conn.AddCallback("PRIVMSG", c.onPrivmsg)
	return c
}

// Subscribe 订阅入站消息
func (c *Client) Subscribe(h chat.Handler, opts ...chat.SubscribeOption) func() {
	return c.hub.Subscribe(h, opts...)
}

// SendMessage 向频道或昵称发送 PRIVMSG，多行文本逐行发送
func (c *Client) SendMessage(ctx context.Context, text, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(destination) == "" {
		return ErrEmptyDestination
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if err := c.sess.Privmsg(destination, line); err != nil {
			return errors.Wrapf(err, "irc: privmsg %s", destination)
		}
	}
	return nil
}

// JoinChannel 加入频道
func (c *Client) JoinChannel(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	if err := c.sess.Join(name); err != nil {
		return errors.Wrapf(err, "irc: join %s", name)
	}
	return nil
}

// Connect 建立连接并在后台运行事件循环
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Info("connecting", logger.Fields("server", c.cfg.Server, "tls", c.cfg.TLS)...)
	if err := c.conn.Connect(); err != nil {
		return errors.Wrapf(err, "irc: connect %s", c.cfg.Server)
	}
	c.connected.Store(true)
	c.loopOnce.Do(func() {
		go func() {
			defer close(c.loopDone)
			c.conn.Loop()
			c.connected.Store(false)
		}()
	})
	return nil
}

// Quit 发送告别消息并等待事件循环退出
func (c *Client) Quit(ctx context.Context) error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.conn.Quit()
	select {
	case <-c.loopDone:
		c.log.Info("disconnected", logger.Fields("server", c.cfg.Server)...)
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "irc: wait for quit")
	}
}

// Done 事件循环退出后关闭
func (c *Client) Done() <-chan struct{} {
	return c.loopDone
}

func (c *Client) onConnect(ircmsg.Message) {
	c.log.Info("connected, joining channels", logger.Fields("channels", c.cfg.Channels)...)
	for _, ch := range c.cfg.Channels {
		if err := c.sess.Join(ch); err != nil {
			c.log.Warn("join channel failed", logger.Fields("channel", ch, "error", err)...)
			continue
		}
		c.log.Info("joined channel", logger.Fields("channel", ch)...)
	}
}

func (c *Client) onPrivmsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	nick := c.sess.CurrentNick()
	if nick == "" {
		nick = c.cfg.Nick
	}
	sender := e.Nick()
	if strings.EqualFold(sender, nick) {
		return
	}

	in := classify(nick, c.cfg.CommandPrefix, e.Params[0], sender, e.Params[1])
	msg := chat.NewMessage(in.text, sender, in.source, in.isPrivate, in.isCommand, c.clock.Now())
	if err := c.hub.Publish(context.Background(), msg); err != nil {
		c.log.Debug("inbound message dropped", logger.Fields("message_id", msg.ID.String(), "error", err)...)
	}
}

// logWriter 将连接库的调试输出转到结构化日志
type logWriter struct {
	log logger.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Debug("ircevent", logger.Fields("line", strings.TrimRight(string(p), "\n"))...)
	return len(p), nil
}
