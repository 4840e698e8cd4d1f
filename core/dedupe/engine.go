package dedupe

import (
	"sync/atomic"

	"FMEdge/model"
)

// Engine 持有可热更新的评分表
type Engine struct {
	table atomic.Pointer[model.WeightTable]
}

// NewEngine 创建去重引擎，table 为 nil 时使用默认评分表
func NewEngine(table model.WeightTable) *Engine {
	e := &Engine{}
	e.SetTable(table)
	return e
}

// SetTable 替换评分表，对之后的 Merge 调用生效
func (e *Engine) SetTable(table model.WeightTable) {
	if table == nil {
		table = model.DefaultWeights()
	}
	e.table.Store(&table)
}

// Table 返回当前评分表
func (e *Engine) Table() model.WeightTable {
	return *e.table.Load()
}

// Merge 使用当前评分表快照去重
func (e *Engine) Merge(tracks []model.Track) []model.Track {
	return Merge(tracks, e.Table())
}
