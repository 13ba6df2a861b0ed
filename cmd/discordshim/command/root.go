package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/discord-shim-go/application"
	zlog "github.com/lk2023060901/discord-shim-go/pkg/log"
)

// cfgFile 为 --config 指定的配置文件路径。
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "discordshim",
	Short: "discordshim - relay between printer devices and a Discord bot account",
	Long: `discordshim accepts TCP connections from devices, relays their messages to Discord
channels and forwards Discord commands and attachments back to the devices bound to
each channel.

Configuration is read from ./config.yaml (or SHIM_CONFIG_FILE_PATH, or --config),
overridden by environment variables such as DISCORD_TOKEN and HEALTH_CHECK_CHANNEL_ID.`,
	SilenceUsage: true,
}

// Execute 执行根命令，出错时以非零状态退出。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd, healthCheckCmd)
}

// newApplication 加载配置并返回随 SIGINT/SIGTERM 取消的 context。
func newApplication(cmd *cobra.Command) (*application.Application, context.Context, context.CancelFunc, error) {
	app, err := application.New(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return app, ctx, func() {
		stop()
		_ = zlog.Sync()
	}, nil
}
