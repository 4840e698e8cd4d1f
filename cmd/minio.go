package cmd

import (
	"context"
	"fmt"
	"time"

	"FMEdge/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioPurge  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO缓存桶管理",
	Long:  `查看 MinIO 共享缓存桶的统计信息，或清理已过期的缓存对象。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		store := storage.NewMinioStore(client, cfg.MinioBucket)

		if minioPurge {
			n, err := store.PurgeExpired(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("清理过期对象失败: %w", err)
			}
			fmt.Printf("已删除 %d 个过期对象\n", n)
			return nil
		}

		stats, err := store.Stats(ctx, minioPrefix)
		if err != nil {
			return fmt.Errorf("获取存储桶统计信息失败: %w", err)
		}
		fmt.Printf("对象数量: %d\n", stats.TotalObjects)
		fmt.Printf("总大小: %s\n", storage.FormatSize(stats.TotalSize))
		fmt.Printf("已过期: %d\n", stats.Expired)
		if !stats.LastModified.IsZero() {
			fmt.Printf("最后修改: %s\n", stats.LastModified.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "只统计或清理该前缀下的缓存键")
	minioCmd.Flags().BoolVar(&minioPurge, "purge", false, "删除已过期的缓存对象")

	minioCmd.Example = `  # 显示缓存桶统计信息
  fmedge minio

  # 只统计搜索结果
  fmedge minio -p "search:"

  # 清理过期对象
  fmedge minio --purge`
}
