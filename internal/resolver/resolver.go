package resolver

import (
	"sort"
	"strings"
	"time"

	"WeaselSync/internal/model"
)

// GlobalUser 跨区域身份归并后的"一个真实的人"（落库前形态）。
// Email 已小写规范化，是全局自然键。
type GlobalUser struct {
	UserName     string
	Email        string
	HomeRegionID uint64
}

// homeRegionWindows 主区域推断的回看窗口（天），依次放宽；全空则退回全年计数。
// 避免把刚好一个月没在主区域打卡的人误判出去，也不让一次外地出差占权重。
var homeRegionWindows = []int{30, 60, 90, 120}

type aliasKey struct {
	slackUserID string
	regionID    uint64
}

// Resolve 身份归并：把各区域的用户别名按小写 email 折叠成全局用户。
// 返回全局用户列表（首次出现顺序，稳定）和清洗后的别名列表（email 已小写、空 email 已剔除）。
// now 只用于主区域窗口推断，测试时可固定。
func Resolve(aliases []model.SourceUser, attendance []model.SourceAttendance, now time.Time) ([]GlobalUser, []model.SourceUser) {
	// 1. email 小写化，空 email 无法归并，直接剔除
	cleaned := make([]model.SourceUser, 0, len(aliases))
	for _, a := range aliases {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email == "" {
			continue
		}
		a.Email = email
		cleaned = append(cleaned, a)
	}

	// 2. 每个别名在其区域内的打卡次数（选名时的裁决信号）
	attCount := make(map[aliasKey]int)
	for _, at := range attendance {
		if at.SlackUserID == nil {
			continue
		}
		attCount[aliasKey{*at.SlackUserID, at.RegionID}]++
	}

	// 3. 按 email 分组，打卡最多的别名行提供 user_name（并列取先出现者，保证确定性）
	type group struct {
		canonical model.SourceUser
		count     int
		aliases   []model.SourceUser
	}
	groups := make(map[string]*group)
	var emailOrder []string
	for _, a := range cleaned {
		g, ok := groups[a.Email]
		if !ok {
			g = &group{canonical: a, count: attCount[aliasKey{a.SlackUserID, a.RegionID}]}
			groups[a.Email] = g
			emailOrder = append(emailOrder, a.Email)
		} else if c := attCount[aliasKey{a.SlackUserID, a.RegionID}]; c > g.count {
			g.canonical = a
			g.count = c
		}
		g.aliases = append(g.aliases, a)
	}

	// 4. 主区域推断
	users := make([]GlobalUser, 0, len(emailOrder))
	for _, email := range emailOrder {
		g := groups[email]
		users = append(users, GlobalUser{
			UserName:     g.canonical.UserName,
			Email:        email,
			HomeRegionID: inferHomeRegion(g.aliases, attendance, now, g.canonical.RegionID),
		})
	}
	return users, cleaned
}

// inferHomeRegion 依次尝试 30/60/90/120 天窗口，取第一个非空窗口中打卡最多的区域；
// 全部为空则按全年计数；连全年都没有打卡时退回 canonical 别名自己的区域。
// 区域并列时取 region_id 较小者（可接受的人为定序，保证重跑结果一致）。
func inferHomeRegion(aliases []model.SourceUser, attendance []model.SourceAttendance, now time.Time, fallback uint64) uint64 {
	mine := make(map[aliasKey]bool, len(aliases))
	for _, a := range aliases {
		mine[aliasKey{a.SlackUserID, a.RegionID}] = true
	}

	for _, days := range homeRegionWindows {
		cutoff := now.AddDate(0, 0, -days)
		if region, ok := topRegion(attendance, mine, func(d time.Time) bool {
			return !d.Before(cutoff) && !d.After(now)
		}); ok {
			return region
		}
	}
	// 全年兜底（与源端口径一致：自然年）
	if region, ok := topRegion(attendance, mine, func(d time.Time) bool {
		return d.Year() == now.Year()
	}); ok {
		return region
	}
	return fallback
}

// topRegion 统计属于该用户、日期命中谓词的打卡，返回计数最高的区域；无命中返回 false
func topRegion(attendance []model.SourceAttendance, mine map[aliasKey]bool, within func(time.Time) bool) (uint64, bool) {
	counts := make(map[uint64]int)
	for _, at := range attendance {
		if at.SlackUserID == nil || !mine[aliasKey{*at.SlackUserID, at.RegionID}] {
			continue
		}
		d, ok := parseBDDate(at.BDDate)
		if !ok || !within(d) {
			continue
		}
		counts[at.RegionID]++
	}
	if len(counts) == 0 {
		return 0, false
	}
	regions := make([]uint64, 0, len(counts))
	for r := range counts {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })
	best := regions[0]
	for _, r := range regions[1:] {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best, true
}

// parseBDDate 源端日期统一是 DATE 列，但历史数据混有带时间后缀的串，取前 10 位解析
func parseBDDate(s string) (time.Time, bool) {
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
