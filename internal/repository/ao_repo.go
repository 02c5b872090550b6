package repository

import (
	"context"
	"fmt"

	"WeaselSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AORepository 训练点仓储。AO 每轮整表重同步，重名在原行上改写。
type AORepository interface {
	// UpsertAOs (slack_channel_id, region_id) 冲突时只覆写 ao_name
	UpsertAOs(ctx context.Context, aos []*model.AO) error
	// Index 回读 (slack_channel_id, region_id) → ao_id
	Index(ctx context.Context) (map[AOKey]uint64, error)
}

type aoRepository struct {
	db *gorm.DB
}

func NewAORepository(db *gorm.DB) AORepository {
	return &aoRepository{db: db}
}

func (r *aoRepository) UpsertAOs(ctx context.Context, aos []*model.AO) error {
	if len(aos) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slack_channel_id"}, {Name: "region_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"ao_name"}),
		}).CreateInBatches(&aos, 500).Error; err != nil {
			return fmt.Errorf("upsert combined_aos 失败: %w", err)
		}
		return nil
	})
}

func (r *aoRepository) Index(ctx context.Context) (map[AOKey]uint64, error) {
	var aos []model.AO
	if err := r.db.WithContext(ctx).Find(&aos).Error; err != nil {
		return nil, fmt.Errorf("回读 combined_aos 失败: %w", err)
	}
	idx := make(map[AOKey]uint64, len(aos))
	for _, ao := range aos {
		idx[AOKey{ao.SlackChannelID, ao.RegionID}] = ao.AOID
	}
	return idx, nil
}
