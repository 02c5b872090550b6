package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"WeaselSync/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Extractor 单区域增量抽取器：对一个源 schema 拉取 users/aos/beatdowns/bd_attendance 四条流。
// 任何一次拉取失败（表缺失、连接拒绝、结构畸形）只记日志并置空该流，绝不让单个区域拖垮整轮。
type Extractor struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewExtractor(db *gorm.DB, logger *logrus.Logger) *Extractor {
	return &Extractor{db: db, logger: logger}
}

// BuildEventFilter 按水位线状态决定 beatdowns/bd_attendance 的增量过滤条件。
// 判定顺序必须与历史行为一致：
//  1. 两个水位线都有 → timestamp > ? OR ts_edited > ?（新增和被编辑的都抓）
//  2. 只有 max_timestamp → timestamp > ?
//  3. 都没有且区域尚无已合并训练 → 不过滤（首次全量）
//  4. 其余残缺状态 → 本轮跳过该区域的事件/打卡拉取（保守不猜）
func BuildEventFilter(rw model.RegionWatermark) (where string, args []interface{}, pull bool) {
	switch {
	case rw.MaxTimestamp != nil && rw.MaxTsEdited != nil:
		return " WHERE timestamp > ? OR ts_edited > ?", []interface{}{*rw.MaxTimestamp, *rw.MaxTsEdited}, true
	case rw.MaxTimestamp != nil:
		return " WHERE timestamp > ?", []interface{}{*rw.MaxTimestamp}, true
	case rw.BeatdownCount == 0:
		return "", nil, true
	default:
		return "", nil, false
	}
}

// Extract 抽取一个区域的全部四条流。users/aos 永远全量（体量小，整表重同步）；
// beatdowns/bd_attendance 按 BuildEventFilter 增量。
func (e *Extractor) Extract(ctx context.Context, rw model.RegionWatermark) model.RegionExtract {
	res := model.RegionExtract{Region: rw}
	db := rw.SchemaName

	var err error
	if res.Users, err = e.pullUsers(ctx, rw); err != nil {
		e.logger.WithError(err).WithField("schema", db).Error("拉取 users 失败，置空跳过")
		res.Failed = true
	}
	if res.AOs, err = e.pullAOs(ctx, rw); err != nil {
		e.logger.WithError(err).WithField("schema", db).Error("拉取 aos 失败，置空跳过")
		res.Failed = true
	}

	where, args, pull := BuildEventFilter(rw)
	if !pull {
		e.logger.WithField("schema", db).Info("水位线状态残缺且已有历史数据，本轮跳过事件拉取")
		return res
	}
	if res.Beatdowns, err = e.pullBeatdowns(ctx, rw, where, args); err != nil {
		e.logger.WithError(err).WithField("schema", db).Error("拉取 beatdowns 失败，置空跳过")
		res.Failed = true
	}
	if res.Attendance, err = e.pullAttendance(ctx, rw, where, args); err != nil {
		e.logger.WithError(err).WithField("schema", db).Error("拉取 bd_attendance 失败，置空跳过")
		res.Failed = true
	}
	return res
}

type rawUserRow struct {
	SlackUserID *string `gorm:"column:slack_user_id"`
	UserName    *string `gorm:"column:user_name"`
	Email       *string `gorm:"column:email"`
}

type rawAORow struct {
	SlackChannelID *string `gorm:"column:slack_channel_id"`
	AOName         *string `gorm:"column:ao_name"`
}

type rawBeatdownRow struct {
	SlackChannelID *string `gorm:"column:slack_channel_id"`
	BDDate         *string `gorm:"column:bd_date"`
	SlackQUserID   *string `gorm:"column:slack_q_user_id"`
	SlackCoQUserID *string `gorm:"column:slack_coq_user_id"`
	PaxCount       *int    `gorm:"column:pax_count"`
	FngCount       *int    `gorm:"column:fng_count"`
	Timestamp      *string `gorm:"column:timestamp"`
	TsEdited       *string `gorm:"column:ts_edited"`
	Backblast      *string `gorm:"column:backblast"`
	JSON           *string `gorm:"column:json"`
}

type rawAttendanceRow struct {
	SlackChannelID *string `gorm:"column:slack_channel_id"`
	BDDate         *string `gorm:"column:bd_date"`
	SlackQUserID   *string `gorm:"column:slack_q_user_id"`
	SlackUserID    *string `gorm:"column:slack_user_id"`
	JSON           *string `gorm:"column:json"`
}

func (e *Extractor) pullUsers(ctx context.Context, rw model.RegionWatermark) ([]model.SourceUser, error) {
	sql := fmt.Sprintf("SELECT user_id AS slack_user_id, user_name, email FROM %s.users", rw.SchemaName)
	var rows []rawUserRow
	if err := e.db.WithContext(ctx).Raw(sql).Scan(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]model.SourceUser, 0, len(rows))
	for _, r := range rows {
		if strOrEmpty(r.SlackUserID) == "" {
			continue
		}
		users = append(users, model.SourceUser{
			SlackUserID: *r.SlackUserID,
			UserName:    strOrEmpty(r.UserName),
			Email:       strOrEmpty(r.Email),
			RegionID:    rw.RegionID,
		})
	}
	return users, nil
}

func (e *Extractor) pullAOs(ctx context.Context, rw model.RegionWatermark) ([]model.SourceAO, error) {
	sql := fmt.Sprintf("SELECT channel_id AS slack_channel_id, ao AS ao_name FROM %s.aos", rw.SchemaName)
	var rows []rawAORow
	if err := e.db.WithContext(ctx).Raw(sql).Scan(&rows).Error; err != nil {
		return nil, err
	}
	aos := make([]model.SourceAO, 0, len(rows))
	for _, r := range rows {
		if strOrEmpty(r.SlackChannelID) == "" {
			continue
		}
		aos = append(aos, model.SourceAO{
			SlackChannelID: *r.SlackChannelID,
			AOName:         strOrEmpty(r.AOName),
			RegionID:       rw.RegionID,
		})
	}
	return aos, nil
}

func (e *Extractor) pullBeatdowns(ctx context.Context, rw model.RegionWatermark, where string, args []interface{}) ([]model.SourceBeatdown, error) {
	sql := fmt.Sprintf(`SELECT ao_id AS slack_channel_id, bd_date, q_user_id AS slack_q_user_id, coq_user_id AS slack_coq_user_id,
pax_count, fng_count, timestamp, ts_edited, backblast, json FROM %s.beatdowns`, rw.SchemaName) + where
	var rows []rawBeatdownRow
	if err := e.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	bds := make([]model.SourceBeatdown, 0, len(rows))
	for _, r := range rows {
		if strOrEmpty(r.SlackChannelID) == "" || strOrEmpty(r.BDDate) == "" {
			continue
		}
		bds = append(bds, model.SourceBeatdown{
			SlackChannelID: *r.SlackChannelID,
			BDDate:         *r.BDDate,
			SlackQUserID:   NormalizeSlackUserID(r.SlackQUserID),
			SlackCoQUserID: NormalizeSlackUserID(r.SlackCoQUserID),
			PaxCount:       r.PaxCount,
			FngCount:       r.FngCount,
			RegionID:       rw.RegionID,
			Timestamp:      CoerceFloat(r.Timestamp),
			TsEdited:       NormalizeTsEdited(r.TsEdited),
			Backblast:      r.Backblast,
			JSON:           NormalizePayload(r.JSON),
		})
	}
	return bds, nil
}

func (e *Extractor) pullAttendance(ctx context.Context, rw model.RegionWatermark, where string, args []interface{}) ([]model.SourceAttendance, error) {
	sql := fmt.Sprintf(`SELECT ao_id AS slack_channel_id, date AS bd_date, q_user_id AS slack_q_user_id, user_id AS slack_user_id, json
FROM %s.bd_attendance`, rw.SchemaName) + where
	var rows []rawAttendanceRow
	if err := e.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	atts := make([]model.SourceAttendance, 0, len(rows))
	for _, r := range rows {
		if strOrEmpty(r.SlackChannelID) == "" || strOrEmpty(r.BDDate) == "" {
			continue
		}
		atts = append(atts, model.SourceAttendance{
			SlackChannelID: *r.SlackChannelID,
			BDDate:         *r.BDDate,
			SlackQUserID:   NormalizeSlackUserID(r.SlackQUserID),
			SlackUserID:    NormalizeSlackUserID(r.SlackUserID),
			RegionID:       rw.RegionID,
			JSON:           NormalizePayload(r.JSON),
		})
	}
	return atts, nil
}

// NormalizeSlackUserID 把 Slack 用户标识还原为裸 ID。
// 裸 ID（U 开头）原样通过；permalink 形式（…/team/U123ABC|名字）取嵌入的 ID；
// 其余解析失败一律 nil（丢弃，不报错）。
func NormalizeSlackUserID(raw *string) *string {
	if raw == nil || *raw == "" {
		return nil
	}
	s := *raw
	if strings.HasPrefix(s, "U") {
		return &s
	}
	_, after, found := strings.Cut(s, "/team/")
	if !found || after == "" {
		return nil
	}
	id, _, _ := strings.Cut(after, "|")
	if id == "" {
		return nil
	}
	return &id
}

// CoerceFloat 数值化：解析失败（含空串）为 nil，不报错
func CoerceFloat(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil {
		return nil
	}
	return &f
}

// NormalizeTsEdited ts_edited 历史上存过字面量 "NA"，先清掉再数值化
func NormalizeTsEdited(raw *string) *float64 {
	if raw == nil || strings.TrimSpace(*raw) == "NA" {
		return nil
	}
	return CoerceFloat(raw)
}

// NormalizePayload 防御式处理源端嵌入 JSON：合法则压缩存储，畸形则原文透传（不报错）
func NormalizePayload(raw *string) datatypes.JSON {
	if raw == nil || *raw == "" {
		return nil
	}
	b := []byte(*raw)
	if !json.Valid(b) {
		return b
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return b
	}
	return buf.Bytes()
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
