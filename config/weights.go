package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"FMEdge/logger"
	"FMEdge/model"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// weightFile 评分表文件格式：
//
//	providers:
//	  jamendo: {defaultQuality: 0.75, stability: 0.85, base: 0.85}
type weightFile struct {
	Providers map[string]model.ScoreWeight `yaml:"providers"`
}

// ParseWeights 解析 YAML 评分表并叠加到默认表之上。
// 未知的 Provider 名称和越界的权重都视为错误。
func ParseWeights(data []byte) (model.WeightTable, error) {
	var file weightFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析评分表失败: %w", err)
	}

	overrides := make(model.WeightTable, len(file.Providers))
	for name, w := range file.Providers {
		id, ok := model.ParseProviderID(name)
		if !ok {
			return nil, fmt.Errorf("评分表包含未知 provider: %q", name)
		}
		for field, v := range map[string]float64{"defaultQuality": w.DefaultQuality, "stability": w.Stability, "base": w.Base} {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("provider %s 的 %s 超出 [0,1]: %v", name, field, v)
			}
		}
		overrides[id] = w
	}
	return model.DefaultWeights().Merge(overrides), nil
}

// LoadWeights 读取评分表文件，path 为空时返回默认表
func LoadWeights(path string) (model.WeightTable, error) {
	if path == "" {
		return model.DefaultWeights(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取评分表失败: %w", err)
	}
	return ParseWeights(data)
}

// WatchWeights 监听评分表文件，内容变化且解析成功时回调 onChange。
// 解析失败时保留旧表并记录日志。ctx 结束后停止监听。
func WatchWeights(ctx context.Context, path string, onChange func(model.WeightTable)) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	// 监听所在目录，编辑器保存时常常是替换文件而不是写入
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("监听目录 %s 失败: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				table, err := LoadWeights(path)
				if err != nil {
					logger.Warn("评分表重新加载失败，继续使用旧表",
						logger.String("path", path),
						logger.ErrorField(err))
					continue
				}
				logger.Info("评分表已重新加载",
					logger.String("path", path),
					logger.Int("providers", len(table)))
				onChange(table)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("评分表监听出错", logger.ErrorField(err))
			}
		}
	}()
	return nil
}
