package service

import (
	"context"
	"fmt"
	"time"

	"WeaselSync/internal/config"
	"WeaselSync/internal/extractor"
	"WeaselSync/internal/model"
	"WeaselSync/internal/registry"
	"WeaselSync/internal/repository"
	"WeaselSync/internal/resolver"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Pipeline 全量同步流水线：区域发现 → 逐区域增量抽取 → 身份归并 → 按外键顺序合并入库 → 水位线收尾。
// 单线程顺序处理，区域一个一个来；整轮设计为幂等可重入，进程被杀下轮整体重试即可。
type Pipeline struct {
	logger    *logrus.Logger
	cfg       *config.Config
	registry  registry.Registry
	extractor *extractor.Extractor
	userRepo  repository.UserRepository
	aoRepo    repository.AORepository
	bdRepo    repository.BeatdownRepository
	attRepo   repository.AttendanceRepository
}

func NewPipeline(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *Pipeline {
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		registry:  registry.NewRegistry(db, cfg.MySQL.DirectorySchema, cfg.Sync.ExcludeSchemas),
		extractor: extractor.NewExtractor(db, logger),
		userRepo:  repository.NewUserRepository(db),
		aoRepo:    repository.NewAORepository(db),
		bdRepo:    repository.NewBeatdownRepository(db),
		attRepo:   repository.NewAttendanceRepository(db),
	}
}

// RunAll 同步目录中的全部区域
func (p *Pipeline) RunAll(ctx context.Context) error {
	return p.run(ctx, "")
}

// RunRegion 只同步指定 schema 的区域（手动补数用）
func (p *Pipeline) RunRegion(ctx context.Context, schemaName string) error {
	if schemaName == "" {
		return fmt.Errorf("schema 名不能为空")
	}
	return p.run(ctx, schemaName)
}

func (p *Pipeline) run(ctx context.Context, onlySchema string) error {
	log := p.logger.WithField("sync_run", uuid.NewString()[:8])

	// 1. 目录刷新：目录不可达必须在任何写入前中止（水位线状态不可信）
	if err := p.registry.EnsureRegions(ctx); err != nil {
		return fmt.Errorf("刷新区域注册表失败: %w", err)
	}
	regions, err := p.registry.ListActiveRegions(ctx)
	if err != nil {
		return fmt.Errorf("读取活跃区域失败: %w", err)
	}
	if onlySchema != "" {
		var picked []model.RegionWatermark
		for _, rw := range regions {
			if rw.SchemaName == onlySchema {
				picked = append(picked, rw)
			}
		}
		if len(picked) == 0 {
			return fmt.Errorf("目录中不存在区域 schema: %s", onlySchema)
		}
		regions = picked
	}
	log.Infof("本轮待同步区域 %d 个", len(regions))

	// 2. 逐区域抽取。失败区域的数据照常并入（缺的流为空），但记入 failed，收尾不推水位线
	var (
		allUsers      []model.SourceUser
		allAOs        []model.SourceAO
		allBeatdowns  []model.SourceBeatdown
		allAttendance []model.SourceAttendance
		failedRegions = make(map[uint64]bool)
	)
	for _, rw := range regions {
		log.Infof("拉取 %s...", rw.SchemaName)
		ext := p.extractor.Extract(ctx, rw)
		if ext.Failed {
			failedRegions[rw.RegionID] = true
		}
		allUsers = append(allUsers, ext.Users...)
		allAOs = append(allAOs, ext.AOs...)
		allBeatdowns = append(allBeatdowns, ext.Beatdowns...)
		allAttendance = append(allAttendance, ext.Attendance...)
	}
	log.Infof("待处理训练 %d 场、打卡 %d 条", len(allBeatdowns), len(allAttendance))

	// 3. 用户：身份归并 → upsert → 回读 user_id → 别名接回
	log.Info("合并 users...")
	globalUsers, cleanedAliases := resolver.Resolve(allUsers, allAttendance, time.Now())
	if err := p.userRepo.UpsertUsers(ctx, UsersToModels(globalUsers)); err != nil {
		return err
	}
	emailIdx, err := p.userRepo.EmailToUserID(ctx)
	if err != nil {
		return err
	}
	if err := p.userRepo.UpsertAliases(ctx, AliasesToModels(cleanedAliases, emailIdx, p.logger)); err != nil {
		return err
	}
	aliasIdx, err := p.userRepo.AliasIndex(ctx)
	if err != nil {
		return err
	}

	// 4. AO
	log.Info("合并 aos...")
	if err := p.aoRepo.UpsertAOs(ctx, AOsToModels(allAOs)); err != nil {
		return err
	}
	aoIdx, err := p.aoRepo.Index(ctx)
	if err != nil {
		return err
	}

	// 5. 训练场次：解析外键 → 对仓库现状 diff → 分块 upsert → 回读 surrogate key
	log.Info("合并 beatdowns...")
	resolvedBDs, bdStats := ResolveBeatdowns(allBeatdowns, aliasIdx, aoIdx, p.logger)
	bdSnap, err := p.bdRepo.Snapshot(ctx)
	if err != nil {
		return err
	}
	toWrite := DiffBeatdowns(resolvedBDs, bdSnap, &bdStats)
	if err := p.bdRepo.UpsertBeatdowns(ctx, toWrite, p.cfg.Sync.ChunkSize); err != nil {
		return err
	}
	log.Infof("beatdowns: 写入 %d，免写 %d，丢弃（无AO %d / 无主讲 %d）",
		len(toWrite), bdStats.Unchanged, bdStats.DroppedNoAO, bdStats.DroppedNoQ)
	if bdSnap, err = p.bdRepo.Snapshot(ctx); err != nil {
		return err
	}

	// 6. 打卡
	log.Info("合并 attendance...")
	resolvedAtts, attStats := ResolveAttendance(allAttendance, aliasIdx, aoIdx, bdSnap, p.logger)
	attSnap, err := p.attRepo.Snapshot(ctx)
	if err != nil {
		return err
	}
	attToWrite := DiffAttendance(resolvedAtts, attSnap, &attStats)
	if err := p.attRepo.UpsertAttendance(ctx, attToWrite, p.cfg.Sync.ChunkSize); err != nil {
		return err
	}
	log.Infof("attendance: 写入 %d，免写 %d，丢弃（无用户 %d / 无场次 %d）",
		len(attToWrite), attStats.Unchanged, attStats.DroppedNoUser, attStats.DroppedNoBeatdown)

	// 7. 水位线收尾：在打卡合并完成之后重算，抽取失败的区域不推进，下轮整体重试
	return p.finalizeWatermarks(ctx, log, regions, failedRegions)
}

func (p *Pipeline) finalizeWatermarks(ctx context.Context, log *logrus.Entry,
	regions []model.RegionWatermark, failedRegions map[uint64]bool) error {

	aggs, err := p.registry.RegionAggregates(ctx)
	if err != nil {
		return err
	}
	aggByRegion := make(map[uint64]model.RegionWatermark, len(aggs))
	for _, agg := range aggs {
		aggByRegion[agg.RegionID] = agg
	}
	for _, rw := range regions {
		if rw.RegionID == 0 {
			continue
		}
		if failedRegions[rw.RegionID] {
			log.Warnf("区域 %s 本轮有拉取失败，水位线不推进", rw.SchemaName)
			continue
		}
		agg := aggByRegion[rw.RegionID]
		if err := p.registry.RecordWatermark(ctx, rw.RegionID, agg.MaxTimestamp, agg.MaxTsEdited); err != nil {
			return fmt.Errorf("写回区域 %s 水位线失败: %w", rw.SchemaName, err)
		}
	}
	log.Info("同步完成")
	return nil
}
