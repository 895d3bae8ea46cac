package config

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrServerInvalid server 为空
	ErrServerInvalid = errors.New("server invalid")
	// ErrNickInvalid nick 为空
	ErrNickInvalid = errors.New("nick invalid")
	// ErrUserInvalid user 为空
	ErrUserInvalid = errors.New("user invalid")
	// ErrChannelsInvalid channels 为空
	ErrChannelsInvalid = errors.New("channels invalid")
	// ErrQuitMsgInvalid quitMsg 为空
	ErrQuitMsgInvalid = errors.New("quitMsg invalid")
	// ErrConfigSourceInvalid 模块配置来源无效
	ErrConfigSourceInvalid = errors.New("configSource invalid")
)

// ValidationError 启动配置校验失败，属于致命错误
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
