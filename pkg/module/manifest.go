package module

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ManifestFile 可加载单元目录中的清单文件名
const ManifestFile = "module.yaml"

var (
	// ErrEmptyManifest 清单为空
	ErrEmptyManifest = errors.New("module: empty manifest")
	// ErrInvalidManifest 清单格式错误
	ErrInvalidManifest = errors.New("module: invalid manifest")
	// ErrNoImplementation 单元没有提供任何模块实现
	ErrNoImplementation = errors.New("module: unit provides no module implementation")
	// ErrAmbiguousUnit 单元提供了多个模块实现
	ErrAmbiguousUnit = errors.New("module: unit provides more than one module implementation")
	// ErrUnknownFactory 清单引用了未注册的实现
	ErrUnknownFactory = errors.New("module: unknown module implementation")
)

// Manifest 单元清单
type Manifest struct {
	// Provides 本单元实现的模块名称，必须恰好一个
	Provides []string `yaml:"provides"`
	// Description 描述，仅用于展示
	Description string `yaml:"description"`
}

// ParseManifest 解析清单内容
func ParseManifest(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyManifest
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(ErrInvalidManifest, "%v", err)
	}
	provides := m.Provides[:0]
	for _, p := range m.Provides {
		if p = strings.TrimSpace(p); p != "" {
			provides = append(provides, p)
		}
	}
	m.Provides = provides
	return &m, nil
}

// Resolve 在目录中查找本单元的唯一实现
func (m *Manifest) Resolve(c *Catalog) (string, Factory, error) {
	switch len(m.Provides) {
	case 0:
		return "", nil, ErrNoImplementation
	case 1:
	default:
		return "", nil, errors.Wrapf(ErrAmbiguousUnit, "%v", m.Provides)
	}

	name := m.Provides[0]
	f, ok := c.Lookup(name)
	if !ok {
		return "", nil, errors.Wrapf(ErrUnknownFactory, "%q (registered: %v)", name, c.Names())
	}
	return name, f, nil
}
