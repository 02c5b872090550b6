package model

import (
	"gorm.io/datatypes"
)

// Region 合并后的区域表（combined_regions），每个独立运营的 F3 区域 schema 对应一行。
// schema_name 是自然键；region_id 一经分配永不变。水位线字段每轮同步后刷新。
type Region struct {
	RegionID     uint64   `gorm:"column:region_id;primaryKey;autoIncrement"`
	RegionName   string   `gorm:"column:region_name;type:varchar(100);not null"`
	SchemaName   string   `gorm:"column:schema_name;type:varchar(100);uniqueIndex;not null"`
	MaxTimestamp *float64 `gorm:"column:max_timestamp;type:double"`
	MaxTsEdited  *float64 `gorm:"column:max_ts_edited;type:double"`
}

// User 全局用户表（combined_users），按小写 email 去重后的"一个真实的人"。
// home_region_id 由打卡频次推断，随活动迁移可变。
type User struct {
	UserID       uint64  `gorm:"column:user_id;primaryKey;autoIncrement"`
	UserName     string  `gorm:"column:user_name;type:varchar(100);not null"`
	Email        string  `gorm:"column:email;type:varchar(100);uniqueIndex;not null"`
	HomeRegionID *uint64 `gorm:"column:home_region_id;type:bigint unsigned"`
}

// UserDup 用户别名表（combined_users_dup）："在区域 X 中这个人叫本地 ID Y"。
// (slack_user_id, region_id) 唯一；多个别名映射到同一个 User。
type UserDup struct {
	AliasID     uint64 `gorm:"column:alias_id;primaryKey;autoIncrement"`
	SlackUserID string `gorm:"column:slack_user_id;type:varchar(32);uniqueIndex:uk_slack_region;not null"`
	UserName    string `gorm:"column:user_name;type:varchar(100);not null"`
	Email       string `gorm:"column:email;type:varchar(100);not null"`
	RegionID    uint64 `gorm:"column:region_id;type:bigint unsigned;uniqueIndex:uk_slack_region;not null"`
	UserID      uint64 `gorm:"column:user_id;type:bigint unsigned;index;not null"`
}

// AO 训练点表（combined_aos），(slack_channel_id, region_id) 唯一。
type AO struct {
	AOID           uint64 `gorm:"column:ao_id;primaryKey;autoIncrement"`
	SlackChannelID string `gorm:"column:slack_channel_id;type:varchar(32);uniqueIndex:uk_channel_region;not null"`
	AOName         string `gorm:"column:ao_name;type:varchar(100);not null"`
	RegionID       uint64 `gorm:"column:region_id;type:bigint unsigned;uniqueIndex:uk_channel_region;not null"`
}

// Beatdown 训练场次表（combined_beatdowns）。
// 自然键 (ao_id, bd_date, q_user_id)：源端没有跨轮稳定的事件 ID，upsert 只能按此匹配。
type Beatdown struct {
	BeatdownID uint64         `gorm:"column:beatdown_id;primaryKey;autoIncrement"`
	AOID       uint64         `gorm:"column:ao_id;type:bigint unsigned;uniqueIndex:uk_ao_date_q;not null"`
	BDDate     string         `gorm:"column:bd_date;type:date;uniqueIndex:uk_ao_date_q;not null"`
	QUserID    *uint64        `gorm:"column:q_user_id;type:bigint unsigned;uniqueIndex:uk_ao_date_q"`
	CoQUserID  *uint64        `gorm:"column:coq_user_id;type:bigint unsigned"`
	PaxCount   int            `gorm:"column:pax_count;type:int;default:0"`
	FngCount   int            `gorm:"column:fng_count;type:int;default:0"`
	Timestamp  *float64       `gorm:"column:timestamp;type:double"`
	TsEdited   *float64       `gorm:"column:ts_edited;type:double"`
	Backblast  *string        `gorm:"column:backblast;type:longtext"`
	JSON       datatypes.JSON `gorm:"column:json;type:longtext"`
}

// Attendance 打卡表（combined_attendance），(beatdown_id, user_id) 唯一：一人一场最多一条。
type Attendance struct {
	AttendanceID uint64         `gorm:"column:attendance_id;primaryKey;autoIncrement"`
	BeatdownID   uint64         `gorm:"column:beatdown_id;type:bigint unsigned;uniqueIndex:uk_beatdown_user;not null"`
	UserID       uint64         `gorm:"column:user_id;type:bigint unsigned;uniqueIndex:uk_beatdown_user;not null"`
	JSON         datatypes.JSON `gorm:"column:json;type:longtext"`
}

func (Region) TableName() string     { return "combined_regions" }
func (User) TableName() string       { return "combined_users" }
func (UserDup) TableName() string    { return "combined_users_dup" }
func (AO) TableName() string         { return "combined_aos" }
func (Beatdown) TableName() string   { return "combined_beatdowns" }
func (Attendance) TableName() string { return "combined_attendance" }
