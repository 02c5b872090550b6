package repository

import (
	"context"

	"WeaselSync/internal/model"

	"gorm.io/gorm"
)

// BeatdownFilter 场次列表筛选条件
type BeatdownFilter struct {
	RegionID uint64 // 0 表示不限区域
	FromDate string // YYYY-MM-DD，含
	ToDate   string // YYYY-MM-DD，含
}

// ReportRepository 面向下游报表任务（Kotter 报表、成就统计）的只读查询仓储
type ReportRepository interface {
	// ListRegions 全部区域及其水位线
	ListRegions(ctx context.Context) ([]*model.Region, error)
	// ListUsers 分页查询全局用户，email 可选精确过滤（已小写）
	ListUsers(ctx context.Context, email string, page, pageSize int) ([]*model.User, int64, error)
	// ListBeatdowns 分页查询已合并场次，按日期倒序
	ListBeatdowns(ctx context.Context, filter BeatdownFilter, page, pageSize int) ([]*model.Beatdown, int64, error)
	// AttendanceCount 单个用户的累计打卡数
	AttendanceCount(ctx context.Context, userID uint64) (int64, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) ListRegions(ctx context.Context) ([]*model.Region, error) {
	var regions []*model.Region
	if err := r.db.WithContext(ctx).Order("region_id ASC").Find(&regions).Error; err != nil {
		return nil, err
	}
	return regions, nil
}

func (r *reportRepository) ListUsers(ctx context.Context, email string, page, pageSize int) ([]*model.User, int64, error) {
	page, pageSize = clampPage(page, pageSize)
	db := r.db.WithContext(ctx).Model(&model.User{})
	if email != "" {
		db = db.Where("email = ?", email)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []*model.User
	if err := db.Order("user_id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *reportRepository) ListBeatdowns(ctx context.Context, filter BeatdownFilter, page, pageSize int) ([]*model.Beatdown, int64, error) {
	page, pageSize = clampPage(page, pageSize)
	db := r.db.WithContext(ctx).Model(&model.Beatdown{})
	if filter.RegionID > 0 {
		db = db.Joins("JOIN combined_aos ON combined_aos.ao_id = combined_beatdowns.ao_id").
			Where("combined_aos.region_id = ?", filter.RegionID)
	}
	if filter.FromDate != "" {
		db = db.Where("bd_date >= ?", filter.FromDate)
	}
	if filter.ToDate != "" {
		db = db.Where("bd_date <= ?", filter.ToDate)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*model.Beatdown
	if err := db.Order("bd_date DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *reportRepository) AttendanceCount(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Attendance{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func clampPage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
