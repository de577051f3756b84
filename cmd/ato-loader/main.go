package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/ato-loader/cmd/ato-loader/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 設定を読み込むまでの構造化ログ
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "ato-loader",
		Usage: "コンプライアンス/ATO アプリケーションのナレッジベースとフィクスチャのローダー",
		Commands: []*cli.Command{
			commands.KBCommand(),
			commands.TenantCommand(),
			commands.FixturesCommand(),
			commands.InitCommand(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
