package configloader

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// FileLoader 从模块根目录读取配置文件
type FileLoader struct {
	fs afero.Fs
}

// NewFileLoader 创建以 root 为根的文件配置读取器
func NewFileLoader(root string) *FileLoader {
	return NewFileLoaderFs(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// NewFileLoaderFs 使用给定文件系统创建读取器，路径相对于 fs 根
func NewFileLoaderFs(fs afero.Fs) *FileLoader {
	return &FileLoader{fs: fs}
}

// Load 读取 relPath 并解析到 out
func (l *FileLoader) Load(relPath string, out any) error {
	p, err := cleanPath(relPath)
	if err != nil {
		return loadError(relPath, err)
	}

	data, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return loadError(relPath, errors.Wrap(err, "read"))
	}
	if err := decode(p, data, out); err != nil {
		return loadError(relPath, errors.Wrap(err, "parse"))
	}
	return nil
}
