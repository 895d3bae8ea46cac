package module

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrEmptyName 工厂名称为空
	ErrEmptyName = errors.New("module: empty factory name")
	// ErrNilFactory 工厂为空
	ErrNilFactory = errors.New("module: nil factory")
	// ErrDuplicateFactory 名称重复注册
	ErrDuplicateFactory = errors.New("module: duplicate factory")
)

// Catalog 编译期注册的 名称 -> 工厂 表，名称不区分大小写
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[string]string
}

// NewCatalog 创建空目录
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
		names:     make(map[string]string),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register 注册工厂
func (c *Catalog) Register(name string, f Factory) error {
	k := key(name)
	if k == "" {
		return ErrEmptyName
	}
	if f == nil {
		return errors.Wrapf(ErrNilFactory, "%q", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[k]; exists {
		return errors.Wrapf(ErrDuplicateFactory, "%q", name)
	}
	c.factories[k] = f
	c.names[k] = strings.TrimSpace(name)
	return nil
}

// MustRegister 注册工厂，失败时 panic
func (c *Catalog) MustRegister(name string, f Factory) {
	if err := c.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup 按名称查找工厂
func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[key(name)]
	return f, ok
}

// Names 返回已注册名称（升序）
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var defaultCatalog = NewCatalog()

// Default 返回进程默认目录，内置模块在 init 中注册到这里
func Default() *Catalog {
	return defaultCatalog
}

// Register 注册到默认目录
func Register(name string, f Factory) error {
	return defaultCatalog.Register(name, f)
}

// MustRegister 注册到默认目录，失败时 panic
func MustRegister(name string, f Factory) {
	defaultCatalog.MustRegister(name, f)
}
