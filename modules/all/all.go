// Package all 导入即注册全部内置模块。
package all

import (
	_ "github.com/lk2023060901/norbert/modules/announce"
	_ "github.com/lk2023060901/norbert/modules/tumblr"
)
