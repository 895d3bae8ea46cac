package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message 一条入站聊天消息，按值传递，处理器之间互不影响。
type Message struct {
	// ID 用于日志关联
	ID uuid.UUID
	// Text 消息正文；指令消息为去掉指令前缀后的内容
	Text string
	// Nick 发送者昵称
	Nick string
	// Source 回复目标：频道名，私聊时为发送者昵称
	Source string
	// IsPrivate 是否为私聊
	IsPrivate bool
	// IsCommand 是否为发给机器人的指令
	IsCommand bool
	// ReceivedAt 接收时间
	ReceivedAt time.Time
}

// NewMessage 创建带新 ID 的消息
func NewMessage(text, nick, source string, private, command bool, at time.Time) Message {
	return Message{
		ID:         uuid.New(),
		Text:       text,
		Nick:       nick,
		Source:     source,
		IsPrivate:  private,
		IsCommand:  command,
		ReceivedAt: at,
	}
}

// Handler 消息处理函数
type Handler func(ctx context.Context, msg Message)
