package api

import (
	"net/http"
	"strconv"
	"strings"

	"WeaselSync/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReportHandler 只读查询接口：下游报表任务（Kotter 报表、成就统计）按此读取合并后的仓库数据
type ReportHandler struct {
	repo   repository.ReportRepository
	logger *logrus.Logger
}

func NewReportHandler(db *gorm.DB, logger *logrus.Logger) *ReportHandler {
	return &ReportHandler{
		repo:   repository.NewReportRepository(db),
		logger: logger,
	}
}

// ListRegions 区域列表（含水位线）
// @Router /api/regions [get]
func (h *ReportHandler) ListRegions(c *gin.Context) {
	regions, err := h.repo.ListRegions(c.Request.Context())
	if err != nil {
		h.logger.Errorf("查询区域列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions, "total": len(regions)})
}

// ListUsers 全局用户列表
// @Param email query string false "精确匹配（大小写不敏感）"
// @Router /api/users [get]
func (h *ReportHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))

	users, total, err := h.repo.ListUsers(c.Request.Context(), email, page, pageSize)
	if err != nil {
		h.logger.Errorf("查询用户列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total, "page": page, "page_size": pageSize})
}

// ListBeatdowns 已合并训练场次列表
// @Param region_id query int false "按区域过滤"
// @Router /api/beatdowns [get]
func (h *ReportHandler) ListBeatdowns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	regionID, _ := strconv.ParseUint(c.DefaultQuery("region_id", "0"), 10, 64)

	filter := repository.BeatdownFilter{
		RegionID: regionID,
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
	}
	rows, total, err := h.repo.ListBeatdowns(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.Errorf("查询训练场次失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"beatdowns": rows, "total": total, "page": page, "page_size": pageSize})
}
