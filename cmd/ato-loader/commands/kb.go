package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
)

// AllCatalogues は全カタログを順番に読み込む指定
const AllCatalogues = "all"

// ErrUnknownCatalogue は存在しないカタログが指定された場合のエラー
var ErrUnknownCatalogue = errors.New("unknown catalogue")

// KBCommand はナレッジベース管理コマンドを返す
func KBCommand() *cli.Command {
	return &cli.Command{
		Name:  "kb",
		Usage: "AIナレッジベース管理コマンド",
		Commands: []*cli.Command{
			{
				Name:      "load",
				Usage:     "カタログのURLをデータソースへ反映し、インジェストの完了を待つ",
				ArgsUsage: "<catalogue|all>",
				Flags:     []cli.Flag{envFlag()},
				Action:    KBLoadAction,
			},
			{
				Name:   "list",
				Usage:  "ナレッジベースのデータソース一覧を表示",
				Flags:  []cli.Flag{envFlag()},
				Action: KBListAction,
			},
			{
				Name:      "plan",
				Usage:     "URLの調整結果のみを表示（リモートは変更しない）",
				ArgsUsage: "<catalogue>",
				Flags:     []cli.Flag{envFlag()},
				Action:    KBPlanAction,
			},
		},
	}
}

// KBLoadAction はカタログをナレッジベースへ読み込むコマンドのアクション
func KBLoadAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := output(cmd)
	catalogues, err := resolveCatalogues(appCtx.Container.CatalogueRoot(), cmd.Args().First())
	if err != nil {
		printAvailableCatalogues(out, appCtx.Container.CatalogueRoot())
		return err
	}

	loader, err := appCtx.Container.KnowledgeBaseLoader(ctx)
	if err != nil {
		return err
	}

	if NormalizeCatalogueArg(cmd.Args().First()) == AllCatalogues {
		batch := loader.LoadAll(ctx, catalogues)
		printBatchResult(out, batch)
		return batch.Err()
	}

	result, err := loader.LoadCatalogue(ctx, catalogues[0])
	if result != nil {
		printLoadResult(out, result)
	}
	return err
}

// KBListAction はデータソース一覧を表示するコマンドのアクション
func KBListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	client, err := appCtx.Container.IngestionClient(ctx)
	if err != nil {
		return err
	}

	summaries, err := client.ListDataSources(ctx)
	if err != nil {
		return fmt.Errorf("データソース一覧の取得に失敗: %w", err)
	}
	printDataSources(output(cmd), summaries)
	return nil
}

// KBPlanAction はURLの調整結果を表示するコマンドのアクション
func KBPlanAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	out := output(cmd)
	arg := cmd.Args().First()
	if NormalizeCatalogueArg(arg) == AllCatalogues {
		return fmt.Errorf("plan はカタログを1件指定してください: %w", ErrUnknownCatalogue)
	}
	catalogues, err := resolveCatalogues(appCtx.Container.CatalogueRoot(), arg)
	if err != nil {
		printAvailableCatalogues(out, appCtx.Container.CatalogueRoot())
		return err
	}

	result, err := appCtx.Container.Reconciler().Reconcile(catalogues[0])
	if result != nil {
		printReconcileResult(out, result)
	}
	return err
}

// NormalizeCatalogueArg はカタログ引数を正規化する
func NormalizeCatalogueArg(arg string) string {
	return knowledgebase.NormalizeCatalogue(arg)
}

// resolveCatalogues は引数から読み込むカタログの一覧を決める
func resolveCatalogues(root, arg string) ([]string, error) {
	name := NormalizeCatalogueArg(arg)
	if name == "" {
		return nil, fmt.Errorf("カタログ名を指定してください: %w", ErrUnknownCatalogue)
	}

	available, err := knowledgebase.ListCatalogues(root)
	if err != nil {
		return nil, err
	}

	if name == AllCatalogues {
		if len(available) == 0 {
			return nil, fmt.Errorf("%s: %w", root, knowledgebase.ErrCatalogueNotFound)
		}
		return available, nil
	}
	if !slices.Contains(available, name) {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCatalogue)
	}
	return []string{name}, nil
}

func printAvailableCatalogues(w io.Writer, root string) {
	available, err := knowledgebase.ListCatalogues(root)
	if err != nil || len(available) == 0 {
		fmt.Fprintln(w, "利用可能なカタログ: (なし)")
		return
	}
	fmt.Fprintf(w, "利用可能なカタログ: %s\n", strings.Join(available, ", "))
}

func printReconcileResult(w io.Writer, r *knowledgebase.ReconcileResult) {
	fmt.Fprintf(w, "カタログ: %s\n", r.Catalogue)
	fmt.Fprintf(w, "  共通URL: %d\n", r.BaseCount)
	fmt.Fprintf(w, "  カタログURL: %d\n", r.CatalogueCount)
	fmt.Fprintf(w, "  重複除去: %d\n", r.DuplicatesRemoved)
	fmt.Fprintf(w, "  除外: %d\n", r.DroppedCount())
	fmt.Fprintf(w, "  登録URL: %d\n", len(r.URLs))
	fmt.Fprintf(w, "  合計文字数: %d / %d\n", r.TotalChars, knowledgebase.MaxTotalURLChars)
	fmt.Fprintf(w, "  平均文字数: %d\n", r.AverageLength())
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

func printLoadResult(w io.Writer, r *knowledgebase.LoadResult) {
	state := "既存"
	if r.Created {
		state = "新規作成"
	}
	fmt.Fprintf(w, "カタログ: %s\n", r.Catalogue)
	fmt.Fprintf(w, "  データソース: %s (%s)\n", r.DataSourceID, state)
	fmt.Fprintf(w, "  URL: %d (%d 文字)\n", len(r.URLs), r.TotalChars)
	if r.Update.Err != nil {
		fmt.Fprintf(w, "  URL更新: 失敗 (%v)\n", r.Update.Err)
	}
	if r.JobID != "" {
		fmt.Fprintf(w, "  ジョブ: %s\n", r.JobID)
	}
	fmt.Fprintf(w, "  フィクスチャ: %d\n", r.FixturesLoaded)
}

func printBatchResult(w io.Writer, b *knowledgebase.BatchResult) {
	for _, o := range b.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "NG %s: %v\n", o.Catalogue, o.Err)
			continue
		}
		fmt.Fprintf(w, "OK %s\n", o.Catalogue)
	}
	if failed := b.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "失敗したカタログ: %s\n", strings.Join(failed, ", "))
	}
}

func printDataSources(w io.Writer, summaries []knowledgebase.DataSourceSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "データソースはありません")
		return
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Status)
	}
}
