package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"warden/internal/config"
	"warden/internal/launch"
	"warden/pkg/logger"
)

// main 是 warden 启动守护的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

type options struct {
	workDir       string
	extensionsDir string
	logLevel      string
	logFormat     string
	dryRun        bool
}

func run(ctx context.Context, argv []string) int {
	var opts options
	flagSet := pflag.NewFlagSet("warden", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&opts.workDir, "work-dir", "warden", "working directory holding configuration, caches and logs")
	flagSet.StringVar(&opts.extensionsDir, "extensions-dir", "plugins", "directory scanned for extensions")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "log format override (text, json)")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "run every check without arming protection or launching the payload")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: warden [flags] <payload>\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		return 1
	}

	if err := initLogger(opts); err != nil {
		fmt.Fprintf(os.Stderr, "warden: 初始化日志失败: %v\n", err)
		return 1
	}

	launchOpts := []launch.Option{
		launch.WithWorkDir(opts.workDir),
		launch.WithExtensionsDir(opts.extensionsDir),
	}
	if opts.logLevel != "" {
		launchOpts = append(launchOpts, launch.WithFixedLogLevel())
	}
	return launch.Main(ctx, flagSet.Args(), launch.Settings{DryRun: opts.dryRun, Stdout: os.Stdout}, launchOpts...)
}

// initLogger 在安装之前初始化日志，已有的 global.yml 用于确定滚动策略。
func initLogger(opts options) error {
	global := config.Defaults().Global
	if set, err := config.Load(opts.workDir); err == nil {
		global = set.Global
	}
	level := global.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	format := global.Log.Format
	if opts.logFormat != "" {
		format = opts.logFormat
	}
	return logger.Init(logger.Config{
		Level:       level,
		Format:      format,
		OutputPaths: []string{"stderr"},
		File: logger.FileConfig{
			Path:       filepath.Join(opts.workDir, "logs", "warden.log"),
			MaxSizeMB:  global.Log.MaxSizeMB,
			MaxBackups: global.Log.MaxBackups,
			MaxAgeDays: global.Log.MaxAgeDays,
		},
		Audit: logger.AuditConfig{
			Enabled: true,
			Path:    filepath.Join(opts.workDir, "logs", "audit.log"),
		},
	})
}
