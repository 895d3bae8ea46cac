package logger

import "fmt"

// Fields 将 key/value 交替排列的参数转换为 Field 列表，非字符串 key 会被格式化。
func Fields(kv ...any) []Field {
	if len(kv) == 0 {
		return nil
	}
	out := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, Field{Key: key, Value: kv[i+1]})
	}
	return out
}

// Err 返回键为 error 的字段。
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
