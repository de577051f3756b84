package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/jinford/ato-loader/internal/core/fixture"
	"github.com/jinford/ato-loader/internal/platform/container"
)

// FixturesCommand は共通フィクスチャ管理コマンドを返す
func FixturesCommand() *cli.Command {
	return &cli.Command{
		Name:  "fixtures",
		Usage: "共通フィクスチャ管理コマンド",
		Commands: []*cli.Command{
			{
				Name:   "load-all",
				Usage:  "fixtures 直下の共通フィクスチャを読み込み順に読み込む",
				Flags:  []cli.Flag{envFlag()},
				Action: FixturesLoadAllAction,
			},
		},
	}
}

// FixturesLoadAllAction は共通フィクスチャを読み込むコマンドのアクション
func FixturesLoadAllAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	report, err := loadAllFixtures(ctx, appCtx.Container)
	if report != nil {
		printLoadReport(output(cmd), report, true)
	}
	return err
}

func loadAllFixtures(ctx context.Context, c *container.ServiceContainer) (*fixture.LoadReport, error) {
	loader, audit, err := c.BulkLoader(ctx)
	if err != nil {
		return nil, err
	}
	return fixture.LoadAll(ctx, c.Config().FixturesDir, loader, audit, fixture.WithRunnerLogger(c.Logger()))
}
