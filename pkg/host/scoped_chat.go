package host

import (
	"context"
	"sync"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
)

// scopedChat 为单个模块包装共享的聊天连接，记录其订阅以便卸载时统一取消
type scopedChat struct {
	inner capability.ChatClient
	name  string

	mu     sync.Mutex
	cancel []func()
}

func newScopedChat(inner capability.ChatClient, name string) *scopedChat {
	return &scopedChat{inner: inner, name: name}
}

func (s *scopedChat) Subscribe(h chat.Handler, opts ...chat.SubscribeOption) func() {
	opts = append([]chat.SubscribeOption{chat.WithSubscriber(s.name)}, opts...)
	unsubscribe := s.inner.Subscribe(h, opts...)

	s.mu.Lock()
	s.cancel = append(s.cancel, unsubscribe)
	s.mu.Unlock()
	return unsubscribe
}

func (s *scopedChat) SendMessage(ctx context.Context, text, destination string) error {
	return s.inner.SendMessage(ctx, text, destination)
}

func (s *scopedChat) JoinChannel(ctx context.Context, name string) error {
	return s.inner.JoinChannel(ctx, name)
}

// cancelAll 取消该模块的全部订阅
func (s *scopedChat) cancelAll() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	for _, fn := range cancel {
		fn()
	}
}

var _ capability.ChatClient = (*scopedChat)(nil)
