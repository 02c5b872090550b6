package service

import (
	"bytes"

	"WeaselSync/internal/model"
	"WeaselSync/internal/repository"
	"WeaselSync/internal/resolver"

	"github.com/sirupsen/logrus"
)

// MergeStats 一次实体合并中被本地消化的行数（丢弃/未变化都不致命，只计数）
type MergeStats struct {
	DroppedNoAO       int // 频道无法解析到 ao_id
	DroppedNoQ        int // 主讲有本地 ID 但全网无别名可解析
	DroppedNoUser     int // 打卡人无法解析到 user_id
	DroppedNoBeatdown int // 打卡对不上任何已合并场次
	Unchanged         int // 与仓库现状逐列相同，免写
}

// UsersToModels 归并结果转仓库行
func UsersToModels(users []resolver.GlobalUser) []*model.User {
	rows := make([]*model.User, 0, len(users))
	for _, u := range users {
		row := &model.User{UserName: u.UserName, Email: u.Email}
		if u.HomeRegionID > 0 {
			home := u.HomeRegionID
			row.HomeRegionID = &home
		}
		rows = append(rows, row)
	}
	return rows
}

// AliasesToModels 清洗后的别名行接回系统分配的 user_id。
// email 在回读映射中缺失说明该别名所属的人没归并成功，丢弃并记日志。
func AliasesToModels(aliases []model.SourceUser, emailIdx map[string]uint64, logger *logrus.Logger) []*model.UserDup {
	rows := make([]*model.UserDup, 0, len(aliases))
	seen := make(map[repository.AliasKey]bool, len(aliases))
	for _, a := range aliases {
		userID, ok := emailIdx[a.Email]
		if !ok {
			logger.WithFields(logrus.Fields{"slack_user_id": a.SlackUserID, "region_id": a.RegionID}).
				Error("别名未能解析到全局用户，丢弃")
			continue
		}
		key := repository.AliasKey{SlackUserID: a.SlackUserID, RegionID: a.RegionID}
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, &model.UserDup{
			SlackUserID: a.SlackUserID,
			UserName:    a.UserName,
			Email:       a.Email,
			RegionID:    a.RegionID,
			UserID:      userID,
		})
	}
	return rows
}

// AOsToModels 源端 AO 转仓库行，(channel, region) 去重取先出现者
func AOsToModels(aos []model.SourceAO) []*model.AO {
	rows := make([]*model.AO, 0, len(aos))
	seen := make(map[repository.AOKey]bool, len(aos))
	for _, ao := range aos {
		key := repository.AOKey{SlackChannelID: ao.SlackChannelID, RegionID: ao.RegionID}
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, &model.AO{
			SlackChannelID: ao.SlackChannelID,
			AOName:         ao.AOName,
			RegionID:       ao.RegionID,
		})
	}
	return rows
}

// ResolveBeatdowns 把源端训练行解析成仓库行：
// ao 外键必需，解析失败整行丢弃；主讲有本地 ID 但解析不到别名的也丢弃（自然键含主讲，留着会撞错行）；
// 副讲解析不到降级为 nil；计数列 null→0。同一自然键的多行保留 ts_edited/timestamp 较新者。
func ResolveBeatdowns(src []model.SourceBeatdown, aliasIdx map[repository.AliasKey]uint64,
	aoIdx map[repository.AOKey]uint64, logger *logrus.Logger) ([]*model.Beatdown, MergeStats) {

	var stats MergeStats
	byKey := make(map[repository.BeatdownKey]*model.Beatdown, len(src))
	var order []repository.BeatdownKey

	for _, s := range src {
		aoID, ok := aoIdx[repository.AOKey{SlackChannelID: s.SlackChannelID, RegionID: s.RegionID}]
		if !ok {
			stats.DroppedNoAO++
			logger.WithFields(logrus.Fields{"channel": s.SlackChannelID, "region_id": s.RegionID, "bd_date": s.BDDate}).
				Error("训练场次频道无法解析，丢弃")
			continue
		}
		qUserID, ok := resolveUser(s.SlackQUserID, s.RegionID, aliasIdx)
		if !ok {
			stats.DroppedNoQ++
			logger.WithFields(logrus.Fields{"q": *s.SlackQUserID, "region_id": s.RegionID, "bd_date": s.BDDate}).
				Error("训练场次主讲无别名可解析，丢弃")
			continue
		}
		coqUserID, _ := resolveUser(s.SlackCoQUserID, s.RegionID, aliasIdx)

		row := &model.Beatdown{
			AOID:      aoID,
			BDDate:    dateOnly(s.BDDate),
			QUserID:   qUserID,
			CoQUserID: coqUserID,
			PaxCount:  intOrZero(s.PaxCount),
			FngCount:  intOrZero(s.FngCount),
			Timestamp: s.Timestamp,
			TsEdited:  s.TsEdited,
			Backblast: s.Backblast,
			JSON:      s.JSON,
		}
		key := repository.NewBeatdownKey(row.AOID, row.BDDate, row.QUserID)
		if prev, dup := byKey[key]; dup {
			if newerBeatdown(row, prev) {
				byKey[key] = row
			}
			continue
		}
		byKey[key] = row
		order = append(order, key)
	}

	rows := make([]*model.Beatdown, 0, len(order))
	for _, key := range order {
		rows = append(rows, byKey[key])
	}
	return rows, stats
}

// DiffBeatdowns 写前瘦身：自然键命中现有行且全部可变列一致的，免写（纯写量优化，语义等价于全量 upsert）
func DiffBeatdowns(incoming []*model.Beatdown, snap map[repository.BeatdownKey]*model.Beatdown, stats *MergeStats) []*model.Beatdown {
	out := make([]*model.Beatdown, 0, len(incoming))
	for _, b := range incoming {
		cur, ok := snap[repository.NewBeatdownKey(b.AOID, b.BDDate, b.QUserID)]
		if ok && sameBeatdown(b, cur) {
			stats.Unchanged++
			continue
		}
		out = append(out, b)
	}
	return out
}

// ResolveAttendance 打卡行解析：打卡人与场次外键都必需，解析失败丢弃；(beatdown_id, user_id) 去重
func ResolveAttendance(src []model.SourceAttendance, aliasIdx map[repository.AliasKey]uint64,
	aoIdx map[repository.AOKey]uint64, bdSnap map[repository.BeatdownKey]*model.Beatdown,
	logger *logrus.Logger) ([]*model.Attendance, MergeStats) {

	var stats MergeStats
	rows := make([]*model.Attendance, 0, len(src))
	seen := make(map[repository.AttendanceKey]bool, len(src))

	for _, s := range src {
		userID, ok := resolveUser(s.SlackUserID, s.RegionID, aliasIdx)
		if !ok || userID == nil {
			stats.DroppedNoUser++
			continue
		}
		aoID, ok := aoIdx[repository.AOKey{SlackChannelID: s.SlackChannelID, RegionID: s.RegionID}]
		if !ok {
			stats.DroppedNoAO++
			continue
		}
		qUserID, _ := resolveUser(s.SlackQUserID, s.RegionID, aliasIdx)
		bd, ok := bdSnap[repository.NewBeatdownKey(aoID, dateOnly(s.BDDate), qUserID)]
		if !ok {
			stats.DroppedNoBeatdown++
			logger.WithFields(logrus.Fields{"ao_id": aoID, "bd_date": s.BDDate, "region_id": s.RegionID}).
				Error("打卡对不上任何已合并场次，丢弃")
			continue
		}
		key := repository.AttendanceKey{BeatdownID: bd.BeatdownID, UserID: *userID}
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, &model.Attendance{BeatdownID: bd.BeatdownID, UserID: *userID, JSON: s.JSON})
	}
	return rows, stats
}

// DiffAttendance 与 DiffBeatdowns 同理
func DiffAttendance(incoming []*model.Attendance, snap map[repository.AttendanceKey]*model.Attendance, stats *MergeStats) []*model.Attendance {
	out := make([]*model.Attendance, 0, len(incoming))
	for _, a := range incoming {
		cur, ok := snap[repository.AttendanceKey{BeatdownID: a.BeatdownID, UserID: a.UserID}]
		if ok && bytes.Equal(cur.JSON, a.JSON) {
			stats.Unchanged++
			continue
		}
		out = append(out, a)
	}
	return out
}

// resolveUser 可空本地 ID → 可空全局 ID。
// 本地 ID 为 nil 时合法返回 (nil, true)；有本地 ID 但查不到别名返回 (nil, false)。
func resolveUser(slackID *string, regionID uint64, aliasIdx map[repository.AliasKey]uint64) (*uint64, bool) {
	if slackID == nil {
		return nil, true
	}
	userID, ok := aliasIdx[repository.AliasKey{SlackUserID: *slackID, RegionID: regionID}]
	if !ok {
		return nil, false
	}
	return &userID, true
}

func newerBeatdown(a, b *model.Beatdown) bool {
	if av, bv := floatOrZero(a.TsEdited), floatOrZero(b.TsEdited); av != bv {
		return av > bv
	}
	return floatOrZero(a.Timestamp) > floatOrZero(b.Timestamp)
}

func sameBeatdown(a, b *model.Beatdown) bool {
	return equalUint(a.CoQUserID, b.CoQUserID) &&
		a.PaxCount == b.PaxCount &&
		a.FngCount == b.FngCount &&
		equalFloat(a.Timestamp, b.Timestamp) &&
		equalFloat(a.TsEdited, b.TsEdited) &&
		equalStr(a.Backblast, b.Backblast) &&
		bytes.Equal(a.JSON, b.JSON)
}

// dateOnly 源端 DATE 列与历史带时间后缀的串统一裁成 YYYY-MM-DD，保证 join 口径一致
func dateOnly(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func equalUint(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
