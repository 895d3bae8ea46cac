package capability

import "fmt"

// ConfigLoadError 模块配置读取失败
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("capability: load config %q: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// HTTPServiceError HTTP 请求失败。StatusCode 仅在收到非 2xx 响应时设置。
type HTTPServiceError struct {
	URI        string
	StatusCode int
	Err        error
}

func (e *HTTPServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("capability: GET %s: status %d: %v", e.URI, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("capability: GET %s: %v", e.URI, e.Err)
}

func (e *HTTPServiceError) Unwrap() error {
	return e.Err
}
