package repository

import (
	"context"
	"fmt"

	"WeaselSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttendanceRepository 打卡仓储
type AttendanceRepository interface {
	// UpsertAttendance (beatdown_id, user_id) 冲突时只覆写 json
	UpsertAttendance(ctx context.Context, attendance []*model.Attendance, chunkSize int) error
	// Snapshot 回读全表，按自然键索引（供写前 diff）
	Snapshot(ctx context.Context) (map[AttendanceKey]*model.Attendance, error)
}

type attendanceRepository struct {
	db *gorm.DB
}

func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) UpsertAttendance(ctx context.Context, attendance []*model.Attendance, chunkSize int) error {
	if len(attendance) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "beatdown_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"json"}),
		}).CreateInBatches(&attendance, chunkSize).Error; err != nil {
			return fmt.Errorf("upsert combined_attendance 失败: %w", err)
		}
		return nil
	})
}

func (r *attendanceRepository) Snapshot(ctx context.Context) (map[AttendanceKey]*model.Attendance, error) {
	var rows []*model.Attendance
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("回读 combined_attendance 失败: %w", err)
	}
	snap := make(map[AttendanceKey]*model.Attendance, len(rows))
	for _, a := range rows {
		snap[AttendanceKey{a.BeatdownID, a.UserID}] = a
	}
	return snap, nil
}
