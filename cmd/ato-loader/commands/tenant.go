package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/jinford/ato-loader/internal/core/fixture"
)

// TenantCommand はテナント管理コマンドを返す
func TenantCommand() *cli.Command {
	return &cli.Command{
		Name:  "tenant",
		Usage: "テナント（ATOワークフロー）管理コマンド",
		Commands: []*cli.Command{
			{
				Name:  "load",
				Usage: "テナントのフィクスチャを検証して読み込む",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "tenant",
						Usage: "テナント名（fixtures/tenants/<テナント名>）",
					},
					&cli.StringFlag{
						Name:  "remote-bucket",
						Usage: "ローカルに無い場合に取得する S3 バケット",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "ファイルごとの結果を表示",
					},
				},
				Action: TenantLoadAction,
			},
			{
				Name:   "list",
				Usage:  "テナント一覧を表示",
				Flags:  []cli.Flag{envFlag()},
				Action: TenantListAction,
			},
			{
				Name:  "export",
				Usage: "テナントのフィクスチャを S3 バケットへアップロード",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "tenant",
						Usage:    "テナント名",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "remote-bucket",
						Usage:    "アップロード先の S3 バケット",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "オブジェクトキーのプレフィックス（省略時はテナント名）",
					},
				},
				Action: TenantExportAction,
			},
		},
	}
}

// TenantLoadAction はテナントを読み込むコマンドのアクション
func TenantLoadAction(ctx context.Context, cmd *cli.Command) error {
	req := fixture.TenantRequest{
		Tenant: cmd.String("tenant"),
		Bucket: cmd.String("remote-bucket"),
	}
	if req.Tenant == "" && req.Bucket == "" {
		return errors.New("--tenant または --remote-bucket を指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	loader, err := appCtx.Container.TenantLoader(ctx, req.Bucket != "")
	if err != nil {
		return err
	}

	report, err := loader.Load(ctx, req)
	if report != nil {
		printLoadReport(output(cmd), report, cmd.Bool("verbose"))
	}
	return err
}

// TenantListAction はテナント一覧を表示するコマンドのアクション
func TenantListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	tenants, err := fixture.ListTenants(appCtx.Container.TenantRoot())
	if err != nil {
		return err
	}
	printTenants(output(cmd), tenants)
	return nil
}

// TenantExportAction はテナントをアップロードするコマンドのアクション
func TenantExportAction(ctx context.Context, cmd *cli.Command) error {
	tenant := cmd.String("tenant")
	bucket := cmd.String("remote-bucket")
	prefix := cmd.String("prefix")
	if prefix == "" {
		prefix = tenant
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	exporter, err := appCtx.Container.TenantExporter(ctx)
	if err != nil {
		return err
	}

	n, err := exporter.Export(ctx, tenant, bucket, prefix)
	if err != nil {
		return err
	}
	fmt.Fprintf(output(cmd), "%d 件のフィクスチャを s3://%s/%s にアップロードしました\n", n, bucket, prefix)
	return nil
}

func printLoadReport(w io.Writer, r *fixture.LoadReport, verbose bool) {
	for _, v := range r.Invalid {
		fmt.Fprintf(w, "不正 %s: %s\n", v.File, v.Message)
	}
	if verbose {
		for _, v := range r.Warnings {
			fmt.Fprintf(w, "警告 %s: %s\n", v.File, v.Message)
		}
		for _, o := range r.Loaded {
			fmt.Fprintf(w, "OK %s [%s] %d 件\n", o.File, o.Category, o.Records)
		}
	}
	for _, o := range r.Failed {
		fmt.Fprintf(w, "NG %s [%s]: %v\n", o.File, o.Category, o.Err)
		fmt.Fprintf(w, "   ヒント: %s\n", o.Hint)
	}

	fmt.Fprintf(w, "読み込み: %d ファイル / %d 件, 失敗: %d ファイル, 警告: %d ファイル\n",
		len(r.Loaded), r.Records(), len(r.Failed), len(r.Warnings))
}

func printTenants(w io.Writer, tenants []fixture.TenantInfo) {
	if len(tenants) == 0 {
		fmt.Fprintln(w, "テナントはありません")
		return
	}
	for _, t := range tenants {
		status := "準備中"
		if t.Ready() {
			status = "準備完了"
		}
		fmt.Fprintf(w, "%s\t%d fixtures\t%s\n", t.Name, t.Fixtures, status)
	}
}
