package host

import (
	"sync"

	"github.com/lk2023060901/norbert/pkg/module"
)

// Descriptor 一个可加载单元
type Descriptor struct {
	// Path 清单文件路径
	Path string
	// Dir 单元目录
	Dir string
	// Manifest 解析后的清单
	Manifest *module.Manifest
}

// Entry 注册表中的一个已激活模块
type Entry struct {
	Descriptor Descriptor
	Name       string
	Module     module.Module

	chat *scopedChat
}

// Registry 按发现顺序保存已加载的模块实例
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
}

func (r *Registry) append(e *Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// remove 移除指定条目
func (r *Registry) remove(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// reset 清空并返回原有条目
func (r *Registry) reset() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

// Entries 返回条目快照（插入顺序）
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Entry(nil), r.entries...)
}

// Names 返回模块名称（插入顺序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Len 已加载模块数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
