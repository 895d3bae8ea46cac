package main

import (
	"github.com/spf13/cobra"
)

// configFile 全局配置文件路径
var configFile string

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "norbert",
		Short: "Norbert - a modular IRC bot",
		Long: `Norbert connects to an IRC server, loads the chat modules found in
its modules directory and dispatches every channel message to them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "config file path")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newModulesCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("norbert " + cmd.Root().Version)
		},
	}
}
