package repository

import (
	"context"
	"fmt"

	"WeaselSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// beatdownMutableColumns 自然键冲突时允许覆写的列。自然键三列本身永不进 update 子句。
var beatdownMutableColumns = []string{
	"coq_user_id", "pax_count", "fng_count", "timestamp", "ts_edited", "backblast", "json",
}

// BeatdownRepository 训练场次仓储
type BeatdownRepository interface {
	// UpsertBeatdowns 单事务内分块 upsert；任一块失败整个事务回滚（该实体本轮作废，下轮收敛重试）
	UpsertBeatdowns(ctx context.Context, beatdowns []*model.Beatdown, chunkSize int) error
	// Snapshot 回读全表，按自然键索引：既供写前 diff，也供打卡合并解析 beatdown_id
	Snapshot(ctx context.Context) (map[BeatdownKey]*model.Beatdown, error)
}

type beatdownRepository struct {
	db *gorm.DB
}

func NewBeatdownRepository(db *gorm.DB) BeatdownRepository {
	return &beatdownRepository{db: db}
}

func (r *beatdownRepository) UpsertBeatdowns(ctx context.Context, beatdowns []*model.Beatdown, chunkSize int) error {
	if len(beatdowns) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ao_id"}, {Name: "bd_date"}, {Name: "q_user_id"}},
			DoUpdates: clause.AssignmentColumns(beatdownMutableColumns),
		}).CreateInBatches(&beatdowns, chunkSize).Error; err != nil {
			return fmt.Errorf("upsert combined_beatdowns 失败: %w", err)
		}
		return nil
	})
}

func (r *beatdownRepository) Snapshot(ctx context.Context) (map[BeatdownKey]*model.Beatdown, error) {
	var rows []*model.Beatdown
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("回读 combined_beatdowns 失败: %w", err)
	}
	snap := make(map[BeatdownKey]*model.Beatdown, len(rows))
	for _, b := range rows {
		snap[NewBeatdownKey(b.AOID, b.BDDate, b.QUserID)] = b
	}
	return snap, nil
}
