// Package main 是 norbert 机器人的命令行入口。
package main

import (
	"fmt"
	"os"

	_ "github.com/lk2023060901/norbert/modules/all"
)

// 构建时注入
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
