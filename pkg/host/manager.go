// Package host 发现、加载并管理聊天模块的生命周期。
package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"

	"github.com/lk2023060901/norbert/pkg/capability"
	"github.com/lk2023060901/norbert/pkg/clock"
	"github.com/lk2023060901/norbert/pkg/fsx"
	"github.com/lk2023060901/norbert/pkg/logger"
	"github.com/lk2023060901/norbert/pkg/module"
)

// ModuleLoadError 某个单元加载失败，整个加载过程随之中止
type ModuleLoadError struct {
	// Unit 出错单元的清单路径（发现失败时为模块目录）
	Unit string
	Err  error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("host: load module unit %s: %v", e.Unit, e.Err)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}

var (
	// ErrNilModule 工厂返回了 nil
	ErrNilModule = errors.New("host: factory returned nil module")
	// ErrAlreadyLoaded 模块已加载，需先卸载或使用 Reload
	ErrAlreadyLoaded = errors.New("host: modules already loaded")
)

// Options 管理器配置
type Options struct {
	// Dir 模块根目录
	Dir string
	// Fs 发现与模块文件访问所用的文件系统，默认磁盘
	Fs afero.Fs
	// Catalog 模块工厂目录，默认 module.Default()
	Catalog *module.Catalog

	// 所有模块共享的能力
	Config capability.ConfigLoader
	HTTP   capability.HTTPService
	Chat   capability.ChatClient
	Logger logger.Logger
	Clock  clock.Clock
}

// Manager 模块管理器。
//
// 加载与卸载串行执行；注册表只在这两个阶段修改。
type Manager struct {
	opts     Options
	log      logger.Logger
	registry *Registry

	phase sync.Mutex
}

// New 创建模块管理器
func New(opts Options) *Manager {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Catalog == nil {
		opts.Catalog = module.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.MustNew(clock.DefaultConfig())
	}
	return &Manager{
		opts:     opts,
		log:      opts.Logger,
		registry: &Registry{},
	}
}

// Registry 返回模块注册表
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Modules 返回已加载模块名称（加载顺序）
func (m *Manager) Modules() []string {
	return m.registry.Names()
}

// Discover 递归查找模块目录下的所有单元，按清单路径字典序返回。
// 目录不存在或为空只记录警告。
func (m *Manager) Discover() ([]Descriptor, error) {
	dir := m.opts.Dir
	exists, err := afero.DirExists(m.opts.Fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "host: stat %s", dir)
	}
	if !exists {
		m.log.Warn("module directory not found", logger.Fields("dir", dir)...)
		return nil, nil
	}

	var paths []string
	err = afero.Walk(m.opts.Fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Name() == module.ManifestFile {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "host: walk %s", dir)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		m.log.Warn("no module units found", logger.Fields("dir", dir)...)
		return nil, nil
	}

	descs := make([]Descriptor, 0, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(m.opts.Fs, p)
		if err != nil {
			return nil, &ModuleLoadError{Unit: p, Err: err}
		}
		manifest, err := module.ParseManifest(data)
		if err != nil {
			return nil, &ModuleLoadError{Unit: p, Err: err}
		}
		descs = append(descs, Descriptor{Path: p, Dir: filepath.Dir(p), Manifest: manifest})
	}
	return descs, nil
}

// LoadModules 发现并依次实例化、激活所有单元。
// 任一单元失败即中止并返回 *ModuleLoadError；已激活的模块会被停用，注册表清空。
func (m *Manager) LoadModules(ctx context.Context) error {
	m.phase.Lock()
	defer m.phase.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) error {
	if m.registry.Len() > 0 {
		return ErrAlreadyLoaded
	}

	descs, err := m.Discover()
	if err != nil {
		var loadErr *ModuleLoadError
		if !errors.As(err, &loadErr) {
			err = &ModuleLoadError{Unit: m.opts.Dir, Err: err}
		}
		m.log.Error("module discovery failed", logger.Err(err))
		return err
	}

	for _, d := range descs {
		if err := m.load(ctx, d); err != nil {
			loadErr := &ModuleLoadError{Unit: d.Path, Err: err}
			m.log.Error("module load failed", logger.Fields("unit", d.Path, "error", err)...)
			if rbErr := m.unloadLocked(ctx); rbErr != nil {
				m.log.Warn("rollback after failed load reported errors", logger.Err(rbErr))
			}
			return loadErr
		}
	}

	m.log.Info("modules loaded", logger.Fields("count", m.registry.Len(), "modules", m.registry.Names())...)
	return nil
}

// load 实例化并激活单个单元
func (m *Manager) load(ctx context.Context, d Descriptor) error {
	_, factory, err := d.Manifest.Resolve(m.opts.Catalog)
	if err != nil {
		return err
	}

	mod, err := construct(factory)
	if err != nil {
		return err
	}

	name := module.Name(mod)
	entry := &Entry{
		Descriptor: d,
		Name:       name,
		Module:     mod,
		chat:       newScopedChat(m.opts.Chat, name),
	}
	m.registry.append(entry)

	var chatCap capability.ChatClient
	if m.opts.Chat != nil {
		chatCap = entry.chat
	}
	caps := capability.Set{
		Config: m.opts.Config,
		Files:  fsx.NewFs(afero.NewBasePathFs(m.opts.Fs, d.Dir)),
		Chat:   chatCap,
		HTTP:   m.opts.HTTP,
		Logger: m.opts.Logger.With(logger.Field{Key: "module", Value: name}),
		Clock:  m.opts.Clock,
	}
	if err := caps.Validate(); err != nil {
		m.registry.remove(entry)
		return err
	}

	if err := activate(ctx, mod, caps); err != nil {
		// 激活失败的模块不调用 Deactivate，只撤销其订阅
		entry.chat.cancelAll()
		m.registry.remove(entry)
		return errors.Wrapf(err, "activate %s", name)
	}

	m.log.Info("module activated", logger.Fields("module", name, "unit", d.Path)...)
	return nil
}

// UnloadModules 按加载顺序停用所有模块。
// 单个模块失败只记录并继续，返回的合并错误仅用于报告。
func (m *Manager) UnloadModules(ctx context.Context) error {
	m.phase.Lock()
	defer m.phase.Unlock()
	return m.unloadLocked(ctx)
}

func (m *Manager) unloadLocked(ctx context.Context) error {
	var errs []error
	for _, e := range m.registry.reset() {
		e.chat.cancelAll()
		if err := deactivate(ctx, e.Module); err != nil {
			m.log.Error("module deactivate failed", logger.Fields("module", e.Name, "error", err)...)
			errs = append(errs, errors.Wrapf(err, "deactivate %s", e.Name))
			continue
		}
		m.log.Info("module deactivated", logger.Fields("module", e.Name)...)
	}
	return errors.Join(errs...)
}

// Reload 停用全部模块后以新实例重新加载
func (m *Manager) Reload(ctx context.Context) error {
	m.phase.Lock()
	defer m.phase.Unlock()

	if err := m.unloadLocked(ctx); err != nil {
		m.log.Warn("unload before reload reported errors", logger.Err(err))
	}
	return m.loadLocked(ctx)
}

func construct(f module.Factory) (mod module.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("construct module: panic: %v", r)
		}
	}()
	mod = f()
	if mod == nil {
		return nil, ErrNilModule
	}
	return mod, nil
}

func activate(ctx context.Context, mod module.Module, caps capability.Set) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return mod.Activate(ctx, caps)
}

func deactivate(ctx context.Context, mod module.Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return mod.Deactivate(ctx)
}
