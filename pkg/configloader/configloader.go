// Package configloader 提供 capability.ConfigLoader 的文件与 etcd 实现。
package configloader

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/lk2023060901/norbert/pkg/capability"
)

// ErrEmptyPath 相对路径为空
var ErrEmptyPath = errors.New("configloader: empty path")

// ErrEscapesRoot 相对路径越出根目录
var ErrEscapesRoot = errors.New("configloader: path escapes root")

// decode 按扩展名选择 YAML 或 JSON 解析
func decode(relPath string, data []byte, out any) error {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}

// cleanPath 规范化相对路径，拒绝绝对路径和 ..
func cleanPath(relPath string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(relPath), "\\", "/")
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.HasPrefix(p, "/") {
		return "", ErrEscapesRoot
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrEscapesRoot
		}
	}
	p = path.Clean(p)
	if p == "." {
		return "", ErrEmptyPath
	}
	return p, nil
}

func loadError(relPath string, err error) error {
	return &capability.ConfigLoadError{Path: relPath, Err: err}
}
