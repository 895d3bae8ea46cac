// Package capability 定义宿主向模块提供的能力接口。
//
// 模块只依赖这里的接口，具体实现由宿主在激活时注入。
package capability

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/norbert/pkg/chat"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/logger"
)

// ConfigLoader 按相对路径读取并解析模块配置。
// 文件缺失、不可读或解析失败时返回 *ConfigLoadError。
type ConfigLoader interface {
	Load(relPath string, out any) error
}

// LoadConfig 读取 relPath 并解析为 T
func LoadConfig[T any](l ConfigLoader, relPath string) (T, error) {
	var out T
	if err := l.Load(relPath, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// FileSystem 模块私有的文件读写
type FileSystem interface {
	Exists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Remove(path string) error
}

// ChatClient 聊天连接：订阅入站消息、发送消息、加入频道
type ChatClient interface {
	// Subscribe 注册处理器，返回幂等的取消订阅函数
	Subscribe(h chat.Handler, opts ...chat.SubscribeOption) (unsubscribe func())
	// SendMessage 向频道或昵称发送一条消息
	SendMessage(ctx context.Context, text, destination string) error
	// JoinChannel 加入频道
	JoinChannel(ctx context.Context, name string) error
}

// HTTPService 发起 GET 请求并将 JSON 响应解析到 out，不做重试。
// 网络错误、非 2xx 状态码和无法解析的响应都返回 *HTTPServiceError。
type HTTPService interface {
	GetJSON(ctx context.Context, uri string, out any) error
}

// Set 模块激活时获得的能力集合
type Set struct {
	Config ConfigLoader
	Files  FileSystem
	Chat   ChatClient
	HTTP   HTTPService

	Logger logger.Logger
	Clock  clock.Clock
}

// ErrMissingCapability 能力集合不完整
var ErrMissingCapability = errors.New("capability: missing capability")

// Validate 检查四个必需能力是否齐全
func (s Set) Validate() error {
	var missing []string
	if s.Config == nil {
		missing = append(missing, "config")
	}
	if s.Files == nil {
		missing = append(missing, "files")
	}
	if s.Chat == nil {
		missing = append(missing, "chat")
	}
	if s.HTTP == nil {
		missing = append(missing, "http")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingCapability, "%v", missing)
	}
	return nil
}

// WithDefaults 为空的环境能力填充默认值
func (s Set) WithDefaults() Set {
	if s.Logger == nil {
		s.Logger = logger.Nop()
	}
	if s.Clock == nil {
		s.Clock = clock.MustNew(clock.DefaultConfig())
	}
	return s
}
