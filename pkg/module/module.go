// Package module 定义聊天模块的契约、工厂目录以及可加载单元的清单格式。
package module

import (
	"context"
	"reflect"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/chat"
)

// Module 可插拔聊天模块的生命周期。
//
// Activate 在任何消息投递前调用且只调用一次；OnMessage 可能与自身并发执行，
// 失败需在内部处理；Deactivate 在宿主关闭或重载时调用一次。
type Module interface {
	// Activate 完成一次性初始化（读取配置、订阅消息）。
	// 可选配置缺失应降级为已加载但停用，而不是返回错误。
	Activate(ctx context.Context, caps capability.Set) error
	// OnMessage 处理一条消息，不得 panic 逃逸。
	OnMessage(ctx context.Context, msg chat.Message)
	// Deactivate 同步释放持有的资源。
	Deactivate(ctx context.Context) error
}

// Factory 创建一个新的模块实例，每次调用返回独立实例。
type Factory func() Module

// Name 返回模块实现类型的名称，例如 *tumblr.Tumblr 为 "Tumblr"。
func Name(m Module) string {
	if m == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
