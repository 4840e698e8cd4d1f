package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FMEdge/config"
	"FMEdge/core/aggregator"
	"FMEdge/core/breaker"
	"FMEdge/core/dedupe"
	"FMEdge/core/provider"
	"FMEdge/model"

	"github.com/spf13/cobra"
)

var (
	searchKeyword   string
	searchProviders string
	searchPage      int
	searchPageSize  int
	searchResolve   int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "命令行聚合搜索",
	Long:  `不经过缓存和限流，直接向各 Provider 并发搜索并输出去重后的结果，可选解析某一首的播放地址。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchKeyword == "" && len(args) > 0 {
			searchKeyword = strings.Join(args, " ")
		}
		if searchKeyword == "" {
			return fmt.Errorf("请输入要搜索的歌曲名称")
		}

		table, err := config.LoadWeights(cfg.WeightsFile)
		if err != nil {
			return err
		}
		registry := provider.Default(cfg)
		orch := aggregator.New(registry,
			breaker.NewRegistry(cfg.BreakerThreshold, cfg.BreakerCooldown),
			aggregator.WithMaxWorkers(cfg.FanoutWorkers))
		ids := registry.Select(searchProviders)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		fmt.Printf("正在搜索: %s (%s)\n", searchKeyword, strings.Join(model.ProviderNames(ids), ", "))
		result := orch.Search(ctx, searchKeyword, searchPage, searchPageSize, ids)
		for _, o := range result.Outcomes {
			status := fmt.Sprintf("%d 条", o.Count)
			if o.Err != nil {
				status = o.Err.Error()
			}
			fmt.Printf("  %-8s %-8s %s\n", o.Provider, o.Elapsed.Round(time.Millisecond), status)
		}

		items := dedupe.Merge(result.Tracks, table)
		if len(items) == 0 {
			fmt.Println("未找到相关歌曲")
			return nil
		}
		fmt.Printf("\n去重后 %d 首 (原始 %d 首):\n", len(items), len(result.Tracks))
		for i, t := range items {
			fmt.Printf("%2d. [%s:%s] %s - %s", i+1, t.SourceID, t.ID, t.Title, t.Artist)
			if t.Album != "" {
				fmt.Printf(" [%s]", t.Album)
			}
			if t.BitrateKbps > 0 {
				fmt.Printf(" %dkbps", t.BitrateKbps)
			}
			fmt.Printf(" score=%.3f\n", dedupe.Score(t, table))
		}

		if searchResolve < 1 {
			return nil
		}
		if searchResolve > len(items) {
			return fmt.Errorf("无效的选择: %d", searchResolve)
		}
		selected := items[searchResolve-1]
		loc, err := orch.Resolve(ctx, selected.SourceID, selected.ID, "320")
		if err != nil {
			return fmt.Errorf("获取播放地址失败: %w", err)
		}
		fmt.Printf("\n歌曲: %s\n艺术家: %s\n播放地址: %s\n", selected.Title, selected.Artist, loc.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchKeyword, "keyword", "k", "", "要搜索的歌曲名称")
	searchCmd.Flags().StringVarP(&searchProviders, "providers", "p", "", "逗号分隔的 Provider 列表，为空时使用全部")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "页码")
	searchCmd.Flags().IntVarP(&searchPageSize, "limit", "l", 10, "每个 Provider 返回的结果数量")
	searchCmd.Flags().IntVarP(&searchResolve, "resolve", "r", 0, "解析第 N 首的播放地址")
}
