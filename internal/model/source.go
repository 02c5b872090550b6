package model

import "gorm.io/datatypes"

// RegionWatermark 区域同步水位线值对象：随流水线逐级传递，不做共享可变状态。
// RegionID 为 0 表示目录中新发现、尚未入库的 schema。
type RegionWatermark struct {
	SchemaName    string   `gorm:"column:schema_name"`
	RegionName    string   `gorm:"column:region_name"`
	RegionID      uint64   `gorm:"column:region_id"`
	MaxTimestamp  *float64 `gorm:"column:max_timestamp"`
	MaxTsEdited   *float64 `gorm:"column:max_ts_edited"`
	BeatdownCount int64    `gorm:"column:beatdown_count"`
}

// SourceUser 区域源库 users 表的一行（已在抽取边界完成规范化）。
type SourceUser struct {
	SlackUserID string
	UserName    string
	Email       string
	RegionID    uint64
}

// SourceAO 区域源库 aos 表的一行。
type SourceAO struct {
	SlackChannelID string
	AOName         string
	RegionID       uint64
}

// SourceBeatdown 区域源库 beatdowns 表的一行。
// Slack ID 已从 permalink 形式还原为裸 ID（还原失败为 nil）；
// timestamp/ts_edited 已数值化（"NA"、脏数据为 nil）。
type SourceBeatdown struct {
	SlackChannelID string
	BDDate         string
	SlackQUserID   *string
	SlackCoQUserID *string
	PaxCount       *int
	FngCount       *int
	RegionID       uint64
	Timestamp      *float64
	TsEdited       *float64
	Backblast      *string
	JSON           datatypes.JSON
}

// SourceAttendance 区域源库 bd_attendance 表的一行。
type SourceAttendance struct {
	SlackChannelID string
	BDDate         string
	SlackQUserID   *string
	SlackUserID    *string
	RegionID       uint64
	JSON           datatypes.JSON
}

// RegionExtract 一个区域四条流的抽取结果。
// Failed 为 true 表示该区域至少有一次拉取失败：数据照常并入（缺的流为空），
// 但本轮不推进该区域水位线，下轮整体重试。
type RegionExtract struct {
	Region     RegionWatermark
	Users      []SourceUser
	AOs        []SourceAO
	Beatdowns  []SourceBeatdown
	Attendance []SourceAttendance
	Failed     bool
}
