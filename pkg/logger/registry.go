package logger

import (
	"maps"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	errEmptyLoggerName  = errors.New("logger: name is empty")
	errNilLogger        = errors.New("logger: logger is nil")
	errLoggerRegistered = errors.New("logger: name already registered")
)

// 进程内具名日志，例如 norbert、chat、module
var named = struct {
	sync.RWMutex
	byName map[string]Logger
}{byName: make(map[string]Logger)}

// Register 注册具名 Logger，同名只能注册一次
func Register(name string, l Logger) error {
	switch {
	case name == "":
		return errEmptyLoggerName
	case l == nil:
		return errNilLogger
	}
	named.Lock()
	defer named.Unlock()
	if _, ok := named.byName[name]; ok {
		return errors.Wrapf(errLoggerRegistered, "%s", name)
	}
	named.byName[name] = l
	return nil
}

// Get 按名称取 Logger，未注册时返回 Nop
func Get(name string) Logger {
	return GetOr(name, nop)
}

// GetOr 按名称取 Logger，未注册时返回 fallback
func GetOr(name string, fallback Logger) Logger {
	named.RLock()
	defer named.RUnlock()
	if l, ok := named.byName[name]; ok {
		return l
	}
	return fallback
}

// Names 已注册名称，按字典序
func Names() []string {
	named.RLock()
	defer named.RUnlock()
	return slices.Sorted(maps.Keys(named.byName))
}

// SyncAll 刷新全部具名 Logger
func SyncAll() error {
	named.RLock()
	all := slices.Collect(maps.Values(named.byName))
	named.RUnlock()

	var errs []error
	for _, l := range all {
		if err := l.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
