package registry

import (
	"context"
	"fmt"

	"WeaselSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry 区域注册表：负责发现源 schema、维护各区域的同步水位线。
// 目录（paxminer.regions）是权威名单；combined_regions 只增不删，
// 目录里消失的 schema 自然不再出现在活跃列表中。
type Registry interface {
	// ListActiveRegions 目录 LEFT JOIN 仓库现状：新 schema 水位线为 nil（触发全量抽取）
	ListActiveRegions(ctx context.Context) ([]model.RegionWatermark, error)
	// EnsureRegions 把目录中的 schema 全部 upsert 进 combined_regions，保证 region_id 先于抽取存在。
	// 目录不可达时返回错误，调用方必须在任何写入前中止本轮。
	EnsureRegions(ctx context.Context) error
	// RecordWatermark 幂等写回单个区域的水位线（last-write-wins）
	RecordWatermark(ctx context.Context, regionID uint64, maxTimestamp, maxTsEdited *float64) error
	// RegionAggregates 扫描已合并的 beatdowns 按区域重算水位线（供收尾阶段使用）
	RegionAggregates(ctx context.Context) ([]model.RegionWatermark, error)
}

type registry struct {
	db              *gorm.DB
	directorySchema string
	excludeSchemas  []string
}

func NewRegistry(db *gorm.DB, directorySchema string, excludeSchemas []string) Registry {
	return &registry{db: db, directorySchema: directorySchema, excludeSchemas: excludeSchemas}
}

// beatdownAggSQL 按区域聚合已合并训练数据：MAX(timestamp)/MAX(ts_edited)/COUNT(*)
const beatdownAggSQL = `SELECT a.region_id, MAX(b.timestamp) AS max_timestamp, MAX(b.ts_edited) AS max_ts_edited, COUNT(*) AS beatdown_count
FROM combined_beatdowns b INNER JOIN combined_aos a ON b.ao_id = a.ao_id
GROUP BY a.region_id`

func (r *registry) ListActiveRegions(ctx context.Context) ([]model.RegionWatermark, error) {
	sql := fmt.Sprintf(`SELECT d.schema_name, d.region AS region_name,
IFNULL(cr.region_id, 0) AS region_id,
agg.max_timestamp AS max_timestamp, agg.max_ts_edited AS max_ts_edited,
IFNULL(agg.beatdown_count, 0) AS beatdown_count
FROM %s.regions d
LEFT JOIN combined_regions cr ON d.schema_name = cr.schema_name
LEFT JOIN (%s) agg ON cr.region_id = agg.region_id`, r.directorySchema, beatdownAggSQL)

	var rows []model.RegionWatermark
	tx := r.db.WithContext(ctx)
	if len(r.excludeSchemas) > 0 {
		tx = tx.Raw(sql+" WHERE d.schema_name NOT IN ?", r.excludeSchemas)
	} else {
		tx = tx.Raw(sql)
	}
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取区域目录失败: %w", err)
	}
	return rows, nil
}

func (r *registry) EnsureRegions(ctx context.Context) error {
	rows, err := r.ListActiveRegions(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	// 不设 region_id：已存在的行按 schema_name 命中唯一键，surrogate key 永不改写
	regions := make([]*model.Region, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, &model.Region{
			RegionName:   row.RegionName,
			SchemaName:   row.SchemaName,
			MaxTimestamp: row.MaxTimestamp,
			MaxTsEdited:  row.MaxTsEdited,
		})
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "schema_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"region_name", "max_timestamp", "max_ts_edited"}),
	}).Create(&regions).Error; err != nil {
		return fmt.Errorf("upsert combined_regions 失败: %w", err)
	}
	return nil
}

func (r *registry) RecordWatermark(ctx context.Context, regionID uint64, maxTimestamp, maxTsEdited *float64) error {
	return r.db.WithContext(ctx).Model(&model.Region{}).
		Where("region_id = ?", regionID).
		Updates(map[string]interface{}{
			"max_timestamp": maxTimestamp,
			"max_ts_edited": maxTsEdited,
		}).Error
}

func (r *registry) RegionAggregates(ctx context.Context) ([]model.RegionWatermark, error) {
	var rows []model.RegionWatermark
	if err := r.db.WithContext(ctx).Raw(beatdownAggSQL).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("聚合区域水位线失败: %w", err)
	}
	return rows, nil
}
