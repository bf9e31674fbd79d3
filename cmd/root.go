// Package cmd 定义 linkdrop 命令行
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand 返回挂载了全部子命令的根命令
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "linkdrop",
		Short: "File drop service with temporary download links.",
		Long: `linkdrop stores uploaded files, hands out unguessable download links for them
and reclaims files that nobody has downloaded for a configurable number of days.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default: config.toml in . or ./config)")

	rootCmd.AddCommand(NewServeCommand(&configPath))
	rootCmd.AddCommand(NewReclaimCommand(&configPath))
	return rootCmd
}

// Execute 运行根命令
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
