// Package fsx 提供限定在模块目录内的 capability.FileSystem 实现。
package fsx

import (
	"os"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// ErrInvalidPath 路径为空或越出模块目录
var ErrInvalidPath = errors.New("fsx: invalid path")

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Scoped 以某个目录为根的文件系统，所有路径相对于该目录
type Scoped struct {
	fs afero.Fs
}

// New 创建以 dir 为根的磁盘文件系统
func New(dir string) *Scoped {
	return NewFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewFs 使用给定的 afero 文件系统，测试中可传入 MemMapFs
func NewFs(fs afero.Fs) *Scoped {
	return &Scoped{fs: fs}
}

func clean(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", errors.Wrapf(ErrInvalidPath, "%q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", errors.Wrapf(ErrInvalidPath, "%q", p)
		}
	}
	p = path.Clean(p)
	if p == "." {
		return "", errors.Wrapf(ErrInvalidPath, "%q", p)
	}
	return p, nil
}

// Exists 判断文件或目录是否存在
func (s *Scoped) Exists(p string) (bool, error) {
	cp, err := clean(p)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, cp)
	if err != nil {
		return false, errors.Wrapf(err, "fsx: stat %s", cp)
	}
	return ok, nil
}

// ReadFile 读取文件内容
func (s *Scoped) ReadFile(p string) ([]byte, error) {
	cp, err := clean(p)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, cp)
	if err != nil {
		return nil, errors.Wrapf(err, "fsx: read %s", cp)
	}
	return data, nil
}

// WriteFile 写入文件，自动创建父目录
func (s *Scoped) WriteFile(p string, data []byte) error {
	cp, err := clean(p)
	if err != nil {
		return err
	}
	if dir := path.Dir(cp); dir != "." {
		if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
			return errors.Wrapf(err, "fsx: mkdir %s", dir)
		}
	}
	if err := afero.WriteFile(s.fs, cp, data, filePerm); err != nil {
		return errors.Wrapf(err, "fsx: write %s", cp)
	}
	return nil
}

// Remove 删除文件或空目录，不存在时不报错
func (s *Scoped) Remove(p string) error {
	cp, err := clean(p)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(cp); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "fsx: remove %s", cp)
	}
	return nil
}
