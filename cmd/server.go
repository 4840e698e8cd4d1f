package cmd

import (
	"FMEdge/server"

	"github.com/spf13/cobra"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动边缘代理 HTTP 服务",
	Long:  `启动 FMEdge 的 HTTP 服务，提供 /search、/track、/stream、/selftest 与 /healthz。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverAddr != "" {
			cfg.HTTPAddr = serverAddr
		}
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVarP(&serverAddr, "addr", "a", "", "监听地址，覆盖 HTTP_ADDR")
}
