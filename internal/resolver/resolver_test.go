package resolver

import (
	"testing"
	"time"

	"WeaselSync/internal/model"
)

func sptr(s string) *string { return &s }

var testNow = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func dateAgo(days int) string {
	return testNow.AddDate(0, 0, -days).Format("2006-01-02")
}

func att(slackID string, regionID uint64, bdDate string) model.SourceAttendance {
	return model.SourceAttendance{SlackUserID: sptr(slackID), RegionID: regionID, BDDate: bdDate}
}

func TestResolveMergesByNormalizedEmail(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "Jane", Email: "Jane@X.com", RegionID: 1},
		{SlackUserID: "U2", UserName: "JaneAway", Email: "jane@x.com", RegionID: 2},
	}
	users, cleaned := Resolve(aliases, nil, testNow)
	if len(users) != 1 {
		t.Fatalf("同邮箱应归并为一个用户, got %d", len(users))
	}
	if users[0].Email != "jane@x.com" {
		t.Fatalf("email 应小写化, got %q", users[0].Email)
	}
	if len(cleaned) != 2 {
		t.Fatalf("两个别名都应保留, got %d", len(cleaned))
	}
	for _, a := range cleaned {
		if a.Email != "jane@x.com" {
			t.Fatalf("别名 email 应小写化, got %q", a.Email)
		}
	}
}

func TestResolveDropsEmptyEmail(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "NoMail", Email: "", RegionID: 1},
		{SlackUserID: "U2", UserName: "HasMail", Email: "a@x.com", RegionID: 1},
	}
	users, cleaned := Resolve(aliases, nil, testNow)
	if len(users) != 1 || len(cleaned) != 1 {
		t.Fatalf("空 email 应被剔除, users=%d cleaned=%d", len(users), len(cleaned))
	}
}

func TestCanonicalNameByAttendanceCount(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "RarelyThere", Email: "p@x.com", RegionID: 1},
		{SlackUserID: "U2", UserName: "OftenThere", Email: "p@x.com", RegionID: 2},
	}
	attendance := []model.SourceAttendance{
		att("U1", 1, dateAgo(5)),
		att("U2", 2, dateAgo(3)),
		att("U2", 2, dateAgo(7)),
		att("U2", 2, dateAgo(9)),
	}
	users, _ := Resolve(aliases, attendance, testNow)
	if len(users) != 1 {
		t.Fatalf("应归并为一个用户, got %d", len(users))
	}
	if users[0].UserName != "OftenThere" {
		t.Fatalf("user_name 应来自打卡最多的别名, got %q", users[0].UserName)
	}
}

func TestCanonicalNameTieKeepsFirstEncountered(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "First", Email: "t@x.com", RegionID: 1},
		{SlackUserID: "U2", UserName: "Second", Email: "t@x.com", RegionID: 2},
	}
	users, _ := Resolve(aliases, nil, testNow)
	if users[0].UserName != "First" {
		t.Fatalf("并列时应保留先出现者, got %q", users[0].UserName)
	}
}

func TestHomeRegionPicksFirstNonEmptyWindow(t *testing.T) {
	// 最近 30 天没打卡，70 天前在区域 2 打了 5 次（落在 90 天窗口），
	// 区域 1 只有 200 天前的旧打卡：应选 90 天窗口里的区域 2，而不是更宽的窗口。
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "P", Email: "w@x.com", RegionID: 1},
		{SlackUserID: "U2", UserName: "P", Email: "w@x.com", RegionID: 2},
	}
	var attendance []model.SourceAttendance
	for i := 0; i < 5; i++ {
		attendance = append(attendance, att("U2", 2, dateAgo(70)))
	}
	attendance = append(attendance, att("U1", 1, dateAgo(200)))

	users, _ := Resolve(aliases, attendance, testNow)
	if users[0].HomeRegionID != 2 {
		t.Fatalf("home_region 应为 90 天窗口命中的区域 2, got %d", users[0].HomeRegionID)
	}
}

func TestHomeRegionYearFallback(t *testing.T) {
	// 所有窗口（最大 120 天）都为空，但同一自然年内有打卡 → 全年计数兜底
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "P", Email: "y@x.com", RegionID: 3},
	}
	attendance := []model.SourceAttendance{
		att("U1", 3, dateAgo(150)),
		att("U1", 3, dateAgo(160)),
	}
	users, _ := Resolve(aliases, attendance, testNow)
	if users[0].HomeRegionID != 3 {
		t.Fatalf("全年兜底应命中区域 3, got %d", users[0].HomeRegionID)
	}
}

func TestHomeRegionFallsBackToCanonicalAliasRegion(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "P", Email: "z@x.com", RegionID: 7},
	}
	users, _ := Resolve(aliases, nil, testNow)
	if users[0].HomeRegionID != 7 {
		t.Fatalf("无任何打卡时应退回别名自己的区域, got %d", users[0].HomeRegionID)
	}
}

func TestHomeRegionIgnoresUnparseableDates(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "P", Email: "d@x.com", RegionID: 1},
		{SlackUserID: "U2", UserName: "P", Email: "d@x.com", RegionID: 2},
	}
	attendance := []model.SourceAttendance{
		att("U1", 1, "not-a-date"),
		att("U2", 2, dateAgo(10)),
	}
	users, _ := Resolve(aliases, attendance, testNow)
	if users[0].HomeRegionID != 2 {
		t.Fatalf("脏日期应被忽略, got %d", users[0].HomeRegionID)
	}
}

func TestResolveDeterministicOrder(t *testing.T) {
	aliases := []model.SourceUser{
		{SlackUserID: "U1", UserName: "A", Email: "a@x.com", RegionID: 1},
		{SlackUserID: "U2", UserName: "B", Email: "b@x.com", RegionID: 1},
		{SlackUserID: "U3", UserName: "C", Email: "c@x.com", RegionID: 1},
	}
	for i := 0; i < 10; i++ {
		users, _ := Resolve(aliases, nil, testNow)
		if users[0].Email != "a@x.com" || users[1].Email != "b@x.com" || users[2].Email != "c@x.com" {
			t.Fatalf("输出顺序应稳定为首次出现顺序, got %v", users)
		}
	}
}
