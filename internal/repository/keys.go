package repository

// AliasKey 别名定位键：区域内的 Slack 用户 ID
type AliasKey struct {
	SlackUserID string
	RegionID    uint64
}

// AOKey 训练点定位键：区域内的 Slack 频道 ID
type AOKey struct {
	SlackChannelID string
	RegionID       uint64
}

// BeatdownKey 训练场次自然键 (ao_id, bd_date, q_user_id)。
// QUserID 用 0 表示无主讲（surrogate key 从 1 起，不会冲突）。
type BeatdownKey struct {
	AOID    uint64
	BDDate  string
	QUserID uint64
}

// NewBeatdownKey 把可空主讲 ID 折叠进自然键
func NewBeatdownKey(aoID uint64, bdDate string, qUserID *uint64) BeatdownKey {
	k := BeatdownKey{AOID: aoID, BDDate: bdDate}
	if qUserID != nil {
		k.QUserID = *qUserID
	}
	return k
}

// AttendanceKey 打卡自然键 (beatdown_id, user_id)
type AttendanceKey struct {
	BeatdownID uint64
	UserID     uint64
}
