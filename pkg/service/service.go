// Package service 管理进程内后台服务的启停顺序。
package service

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Service 定义后台服务的生命周期。
type Service interface {
	// ID 返回服务的唯一标识。
	ID() string
	// Requires 返回该服务所依赖的服务 ID 列表。
	Requires() []string
	// Start 启动服务，不应阻塞。
	Start(ctx context.Context) error
	// Stop 停止服务并释放资源。
	Stop(ctx context.Context) error
}

// Func 由函数组装的服务
type Func struct {
	Name      string
	DependsOn []string
	OnStart   func(ctx context.Context) error
	OnStop    func(ctx context.Context) error
}

// ID 返回服务名
func (f *Func) ID() string { return f.Name }

// Requires 返回依赖
func (f *Func) Requires() []string { return f.DependsOn }

// Start 调用 OnStart
func (f *Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

// Stop 调用 OnStop
func (f *Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

var (
	errNilService       = errors.New("service: service is nil")
	errDuplicateService = errors.New("service: duplicate service id")
	errUnknownRequire   = errors.New("service: unknown dependency")
	errDependencyCycle  = errors.New("service: dependency cycle")
	errGroupStarted     = errors.New("service: group already started")
)

// Group 按依赖顺序启动一组服务，按相反顺序停止。
type Group struct {
	services []Service
	started  []Service
}

// Add 注册服务，需在 Start 之前调用
func (g *Group) Add(s Service) error {
	if s == nil {
		return errNilService
	}
	if len(g.started) > 0 {
		return errGroupStarted
	}
	for _, existing := range g.services {
		if existing.ID() == s.ID() {
			return errors.Wrapf(errDuplicateService, "%s", s.ID())
		}
	}
	g.services = append(g.services, s)
	return nil
}

// IDs 返回已注册服务的标识（注册顺序）
func (g *Group) IDs() []string {
	ids := make([]string, len(g.services))
	for i, s := range g.services {
		ids[i] = s.ID()
	}
	return ids
}

// Start 依赖先于被依赖者启动；任一失败时停止已启动的服务
func (g *Group) Start(ctx context.Context) error {
	if len(g.started) > 0 {
		return errGroupStarted
	}
	order, err := g.order()
	if err != nil {
		return err
	}
	for _, s := range order {
		if err := s.Start(ctx); err != nil {
			_ = g.Stop(ctx)
			return errors.Wrapf(err, "service: start %s", s.ID())
		}
		g.started = append(g.started, s)
	}
	return nil
}

// Stop 按启动的相反顺序停止，返回合并后的错误
func (g *Group) Stop(ctx context.Context) error {
	var errs []error
	for i := len(g.started) - 1; i >= 0; i-- {
		s := g.started[i]
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, errors.Wrapf(err, "service: stop %s", s.ID()))
		}
	}
	g.started = nil
	return errors.Join(errs...)
}

// order 深度优先拓扑排序，同层保持注册顺序
func (g *Group) order() ([]Service, error) {
	byID := make(map[string]Service, len(g.services))
	for _, s := range g.services {
		byID[s.ID()] = s
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.services))
	out := make([]Service, 0, len(g.services))

	var visit func(s Service, path []string) error
	visit = func(s Service, path []string) error {
		switch state[s.ID()] {
		case done:
			return nil
		case visiting:
			return errors.Wrapf(errDependencyCycle, "%v", append(path, s.ID()))
		}
		state[s.ID()] = visiting
		for _, dep := range s.Requires() {
			d, ok := byID[dep]
			if !ok {
				return errors.Wrap(errUnknownRequire, fmt.Sprintf("%s requires %s", s.ID(), dep))
			}
			if err := visit(d, append(path, s.ID())); err != nil {
				return err
			}
		}
		state[s.ID()] = done
		out = append(out, s)
		return nil
	}

	for _, s := range g.services {
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
