package service

import (
	"io"
	"testing"

	"WeaselSync/internal/model"
	"WeaselSync/internal/repository"
	"WeaselSync/internal/resolver"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

func sptr(s string) *string   { return &s }
func iptr(i int) *int         { return &i }
func fptr(f float64) *float64 { return &f }
func uptr(u uint64) *uint64   { return &u }
func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testIndexes() (map[repository.AliasKey]uint64, map[repository.AOKey]uint64) {
	aliasIdx := map[repository.AliasKey]uint64{
		{SlackUserID: "U1", RegionID: 1}: 11,
		{SlackUserID: "U2", RegionID: 1}: 12,
	}
	aoIdx := map[repository.AOKey]uint64{
		{SlackChannelID: "C1", RegionID: 1}: 101,
	}
	return aliasIdx, aoIdx
}

func TestResolveBeatdownsResolvesForeignKeys(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	src := []model.SourceBeatdown{{
		SlackChannelID: "C1", BDDate: "2024-01-01",
		SlackQUserID: sptr("U1"), SlackCoQUserID: sptr("U2"),
		PaxCount: iptr(5), FngCount: nil,
		RegionID: 1, Timestamp: fptr(100),
	}}
	rows, stats := ResolveBeatdowns(src, aliasIdx, aoIdx, quietLogger())
	if len(rows) != 1 {
		t.Fatalf("应解析出 1 行, got %d (stats %+v)", len(rows), stats)
	}
	b := rows[0]
	if b.AOID != 101 || b.QUserID == nil || *b.QUserID != 11 || b.CoQUserID == nil || *b.CoQUserID != 12 {
		t.Fatalf("外键解析错误: %+v", b)
	}
	if b.FngCount != 0 {
		t.Fatalf("fng_count null 应置 0, got %d", b.FngCount)
	}
	if b.PaxCount != 5 {
		t.Fatalf("pax_count = %d, want 5", b.PaxCount)
	}
}

func TestResolveBeatdownsDropsUnresolvedAO(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	src := []model.SourceBeatdown{{
		SlackChannelID: "C_UNKNOWN", BDDate: "2024-01-01", SlackQUserID: sptr("U1"), RegionID: 1,
	}}
	rows, stats := ResolveBeatdowns(src, aliasIdx, aoIdx, quietLogger())
	if len(rows) != 0 || stats.DroppedNoAO != 1 {
		t.Fatalf("无法解析频道的行应丢弃, rows=%d stats=%+v", len(rows), stats)
	}
}

func TestResolveBeatdownsDropsUnresolvedQ(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	src := []model.SourceBeatdown{{
		SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: sptr("U_NOBODY"), RegionID: 1,
	}}
	rows, stats := ResolveBeatdowns(src, aliasIdx, aoIdx, quietLogger())
	if len(rows) != 0 || stats.DroppedNoQ != 1 {
		t.Fatalf("主讲无别名的行应丢弃且不报错, rows=%d stats=%+v", len(rows), stats)
	}
}

func TestResolveBeatdownsKeepsNilQ(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	src := []model.SourceBeatdown{{
		SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: nil, RegionID: 1,
	}}
	rows, _ := ResolveBeatdowns(src, aliasIdx, aoIdx, quietLogger())
	if len(rows) != 1 || rows[0].QUserID != nil {
		t.Fatalf("源端本就无主讲的行应保留且 q 为 nil, got %+v", rows)
	}
}

func TestResolveBeatdownsCoQFailureDegradesToNil(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	src := []model.SourceBeatdown{{
		SlackChannelID: "C1", BDDate: "2024-01-01",
		SlackQUserID: sptr("U1"), SlackCoQUserID: sptr("U_NOBODY"), RegionID: 1,
	}}
	rows, _ := ResolveBeatdowns(src, aliasIdx, aoIdx, quietLogger())
	if len(rows) != 1 || rows[0].CoQUserID != nil {
		t.Fatalf("副讲解析失败应降级为 nil 而非丢行, got %+v", rows)
	}
}

func TestResolveBeatdownsDedupKeepsNewerEdit(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	src := []model.SourceBeatdown{
		{SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: sptr("U1"), RegionID: 1, PaxCount: iptr(5), TsEdited: fptr(10)},
		{SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: sptr("U1"), RegionID: 1, PaxCount: iptr(8), TsEdited: fptr(20)},
	}
	rows, _ := ResolveBeatdowns(src, aliasIdx, aoIdx, quietLogger())
	if len(rows) != 1 {
		t.Fatalf("同自然键应只留一行, got %d", len(rows))
	}
	if rows[0].PaxCount != 8 {
		t.Fatalf("应保留 ts_edited 较新的行, pax=%d", rows[0].PaxCount)
	}
}

func TestDiffBeatdownsSkipsUnchangedAndKeepsEdited(t *testing.T) {
	existing := &model.Beatdown{
		BeatdownID: 1, AOID: 101, BDDate: "2024-01-01", QUserID: uptr(11),
		PaxCount: 5, FngCount: 0, Timestamp: fptr(100),
	}
	snap := map[repository.BeatdownKey]*model.Beatdown{
		repository.NewBeatdownKey(101, "2024-01-01", uptr(11)): existing,
	}
	unchanged := &model.Beatdown{AOID: 101, BDDate: "2024-01-01", QUserID: uptr(11), PaxCount: 5, Timestamp: fptr(100)}
	edited := &model.Beatdown{AOID: 101, BDDate: "2024-01-01", QUserID: uptr(11), PaxCount: 8, Timestamp: fptr(100), TsEdited: fptr(200)}

	var stats MergeStats
	out := DiffBeatdowns([]*model.Beatdown{unchanged}, snap, &stats)
	if len(out) != 0 || stats.Unchanged != 1 {
		t.Fatalf("逐列相同的行应免写, out=%d stats=%+v", len(out), stats)
	}
	out = DiffBeatdowns([]*model.Beatdown{edited}, snap, &stats)
	if len(out) != 1 {
		t.Fatalf("被编辑的行应保留用于原地更新, out=%d", len(out))
	}
}

func TestResolveAttendance(t *testing.T) {
	aliasIdx, aoIdx := testIndexes()
	bdSnap := map[repository.BeatdownKey]*model.Beatdown{
		repository.NewBeatdownKey(101, "2024-01-01", uptr(11)): {BeatdownID: 55, AOID: 101, BDDate: "2024-01-01", QUserID: uptr(11)},
	}
	src := []model.SourceAttendance{
		// 正常行
		{SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: sptr("U1"), SlackUserID: sptr("U2"), RegionID: 1},
		// 同一人同一场重复打卡 → 去重
		{SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: sptr("U1"), SlackUserID: sptr("U2"), RegionID: 1},
		// 打卡人无法解析 → 丢弃
		{SlackChannelID: "C1", BDDate: "2024-01-01", SlackQUserID: sptr("U1"), SlackUserID: sptr("U_NOBODY"), RegionID: 1},
		// 对不上任何场次 → 丢弃
		{SlackChannelID: "C1", BDDate: "2024-06-06", SlackQUserID: sptr("U1"), SlackUserID: sptr("U2"), RegionID: 1},
	}
	rows, stats := ResolveAttendance(src, aliasIdx, aoIdx, bdSnap, quietLogger())
	if len(rows) != 1 {
		t.Fatalf("应只留 1 行, got %d (stats %+v)", len(rows), stats)
	}
	if rows[0].BeatdownID != 55 || rows[0].UserID != 12 {
		t.Fatalf("外键解析错误: %+v", rows[0])
	}
	if stats.DroppedNoUser != 1 || stats.DroppedNoBeatdown != 1 {
		t.Fatalf("丢弃计数错误: %+v", stats)
	}
}

func TestDiffAttendanceSkipsUnchanged(t *testing.T) {
	snap := map[repository.AttendanceKey]*model.Attendance{
		{BeatdownID: 55, UserID: 12}: {AttendanceID: 1, BeatdownID: 55, UserID: 12, JSON: datatypes.JSON(`{"a":1}`)},
	}
	var stats MergeStats
	same := &model.Attendance{BeatdownID: 55, UserID: 12, JSON: datatypes.JSON(`{"a":1}`)}
	changed := &model.Attendance{BeatdownID: 55, UserID: 12, JSON: datatypes.JSON(`{"a":2}`)}
	out := DiffAttendance([]*model.Attendance{same, changed}, snap, &stats)
	if len(out) != 1 || stats.Unchanged != 1 {
		t.Fatalf("out=%d stats=%+v", len(out), stats)
	}
}

func TestUsersToModels(t *testing.T) {
	rows := UsersToModels([]resolver.GlobalUser{
		{UserName: "A", Email: "a@x.com", HomeRegionID: 3},
		{UserName: "B", Email: "b@x.com", HomeRegionID: 0},
	})
	if len(rows) != 2 {
		t.Fatalf("len = %d", len(rows))
	}
	if rows[0].HomeRegionID == nil || *rows[0].HomeRegionID != 3 {
		t.Fatalf("home_region_id 应为 3: %+v", rows[0])
	}
	if rows[1].HomeRegionID != nil {
		t.Fatalf("home_region_id 为 0 时应落 NULL: %+v", rows[1])
	}
}

func TestAliasesToModelsJoinsUserIDAndDedups(t *testing.T) {
	emailIdx := map[string]uint64{"a@x.com": 9}
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "A", Email: "a@x.com", RegionID: 1},
		{SlackUserID: "U1", UserName: "A", Email: "a@x.com", RegionID: 1}, // 重复
		{SlackUserID: "U2", UserName: "B", Email: "missing@x.com", RegionID: 1},
	}
	rows := AliasesToModels(aliases, emailIdx, quietLogger())
	if len(rows) != 1 {
		t.Fatalf("重复与未解析的别名应被剔除, got %d", len(rows))
	}
	if rows[0].UserID != 9 {
		t.Fatalf("user_id 应接回 9, got %d", rows[0].UserID)
	}
}
