package repository

import (
	"context"
	"fmt"

	"WeaselSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 全局用户与别名仓储
type UserRepository interface {
	// UpsertUsers email 冲突时只覆写 user_name/home_region_id（last-computed-wins），user_id 永不改写
	UpsertUsers(ctx context.Context, users []*model.User) error
	// EmailToUserID 回读 email → user_id 映射（upsert 后取回系统分配的 surrogate key）
	EmailToUserID(ctx context.Context) (map[string]uint64, error)
	// UpsertAliases (slack_user_id, region_id) 冲突时覆写 user_name/email/user_id
	UpsertAliases(ctx context.Context, aliases []*model.UserDup) error
	// AliasIndex 回读 (slack_user_id, region_id) → user_id，供事件/打卡的外键解析
	AliasIndex(ctx context.Context) (map[AliasKey]uint64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) UpsertUsers(ctx context.Context, users []*model.User) error {
	if len(users) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_name", "home_region_id"}),
		}).CreateInBatches(&users, 500).Error; err != nil {
			return fmt.Errorf("upsert combined_users 失败: %w", err)
		}
		return nil
	})
}

func (r *userRepository) EmailToUserID(ctx context.Context) (map[string]uint64, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("回读 combined_users 失败: %w", err)
	}
	idx := make(map[string]uint64, len(users))
	for _, u := range users {
		idx[u.Email] = u.UserID
	}
	return idx, nil
}

func (r *userRepository) UpsertAliases(ctx context.Context, aliases []*model.UserDup) error {
	if len(aliases) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slack_user_id"}, {Name: "region_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_name", "email", "user_id"}),
		}).CreateInBatches(&aliases, 500).Error; err != nil {
			return fmt.Errorf("upsert combined_users_dup 失败: %w", err)
		}
		return nil
	})
}

func (r *userRepository) AliasIndex(ctx context.Context) (map[AliasKey]uint64, error) {
	var aliases []model.UserDup
	if err := r.db.WithContext(ctx).Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("回读 combined_users_dup 失败: %w", err)
	}
	idx := make(map[AliasKey]uint64, len(aliases))
	for _, a := range aliases {
		idx[AliasKey{a.SlackUserID, a.RegionID}] = a.UserID
	}
	return idx, nil
}
