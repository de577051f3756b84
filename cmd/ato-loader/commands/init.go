package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/ato-loader/internal/core/fixture"
	"github.com/jinford/ato-loader/internal/platform/container"
)

// InitCommand は環境初期化コマンドを返す
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "DBを作り直し、マイグレーションと共通フィクスチャ、テナントを読み込む",
		Flags: []cli.Flag{
			envFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "実行する手順を表示するのみ",
			},
			&cli.StringFlag{
				Name:  "tenant",
				Usage: "最後に読み込むテナント名",
			},
			&cli.StringFlag{
				Name:  "remote-bucket",
				Usage: "テナントを取得する S3 バケット（指定時は --tenant を無視）",
			},
		},
		Action: InitAction,
	}
}

// initOptions は init コマンドの指定内容
type initOptions struct {
	Tenant string
	Bucket string
	DryRun bool
}

// initStep は init で順に実行する1手順
type initStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// InitAction は環境を初期化するコマンドのアクション
func InitAction(ctx context.Context, cmd *cli.Command) error {
	opts := initOptions{
		Tenant: cmd.String("tenant"),
		Bucket: cmd.String("remote-bucket"),
		DryRun: cmd.Bool("dry-run"),
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := output(cmd)
	printInitHeader(out, opts)
	return runInitSteps(ctx, out, buildInitSteps(appCtx.Container, opts, out), opts.DryRun)
}

func printInitHeader(w io.Writer, opts initOptions) {
	fmt.Fprintln(w, "=== 環境の初期化 ===")
	dryRun := "No"
	if opts.DryRun {
		dryRun = "Yes"
	}
	fmt.Fprintf(w, "- Dry Run: %s\n", dryRun)
	bucket := "未指定"
	if opts.Bucket != "" {
		bucket = opts.Bucket
	}
	fmt.Fprintf(w, "- Remote Bucket: %s\n", bucket)
	if opts.Bucket != "" && opts.Tenant != "" {
		fmt.Fprintf(w, "---- リモートバケットが指定されているためテナント %s は無視します ----\n", opts.Tenant)
	}
}

// buildInitSteps は reset-db → migrate → load-all →（指定があれば）テナント読み込みの手順を組み立てる
func buildInitSteps(c *container.ServiceContainer, opts initOptions, out io.Writer) []initStep {
	steps := []initStep{
		{
			Name: "reset-db",
			Run:  c.ResetSchema,
		},
		{
			Name: "migrate: " + c.Config().MigrateCommand,
			Run: func(ctx context.Context) error {
				return runExternal(ctx, c.Config().MigrateCommand, out)
			},
		},
		{
			Name: "fixtures load-all",
			Run: func(ctx context.Context) error {
				report, err := loadAllFixtures(ctx, c)
				if report != nil {
					printLoadReport(out, report, false)
				}
				return err
			},
		},
	}

	req := fixture.TenantRequest{Tenant: opts.Tenant, Bucket: opts.Bucket}
	if req.Bucket != "" {
		req.Tenant = ""
	}
	if req.Tenant == "" && req.Bucket == "" {
		return steps
	}

	return append(steps, initStep{
		Name: "tenant load: " + req.Describe(),
		Run: func(ctx context.Context) error {
			loader, err := c.TenantLoader(ctx, req.Bucket != "")
			if err != nil {
				return err
			}
			report, err := loader.Load(ctx, req)
			if report != nil {
				printLoadReport(out, report, false)
			}
			return err
		},
	})
}

// runInitSteps は手順を順に実行する。失敗した時点で中断する
func runInitSteps(ctx context.Context, out io.Writer, steps []initStep, dryRun bool) error {
	if dryRun {
		fmt.Fprintln(out, "[DRY RUN] 変更は行いません")
		for _, s := range steps {
			fmt.Fprintf(out, "[DRY RUN] %s\n", s.Name)
		}
		return nil
	}

	for _, s := range steps {
		fmt.Fprintf(out, "実行: %s\n", s.Name)
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("%s に失敗: %w", s.Name, err)
		}
		fmt.Fprintln(out, strings.Repeat("-", 60))
	}
	return nil
}

// runExternal はシェルを介さずにコマンドを実行する
func runExternal(ctx context.Context, command string, out io.Writer) error {
	args := strings.Fields(command)
	if len(args) == 0 {
		return errors.New("MIGRATE_COMMAND is empty")
	}

	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Stdout = out
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("failed to run %q: %w", command, err)
	}
	return nil
}
