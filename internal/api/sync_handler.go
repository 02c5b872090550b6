package api

import (
	"net/http"

	"WeaselSync/internal/config"
	"WeaselSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SyncHandler struct {
	pipeline *service.Pipeline
	logger   *logrus.Logger
}

func NewSyncHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *SyncHandler {
	return &SyncHandler{
		pipeline: service.NewPipeline(db, logger, cfg),
		logger:   logger,
	}
}

// Pipeline 暴露给 cron 调度复用，避免两份流水线实例
func (h *SyncHandler) Pipeline() *service.Pipeline {
	return h.pipeline
}

// RunAllHandler 触发全量同步
// @Router /sync/run [post]
func (h *SyncHandler) RunAllHandler(c *gin.Context) {
	if err := h.pipeline.RunAll(c.Request.Context()); err != nil {
		h.logger.Errorf("全量同步失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "同步完成"})
}

// RunRegionHandler 触发单区域同步（手动补数）
// @Router /sync/region/{schema} [post]
func (h *SyncHandler) RunRegionHandler(c *gin.Context) {
	schema := c.Param("schema")
	if err := h.pipeline.RunRegion(c.Request.Context(), schema); err != nil {
		h.logger.Errorf("同步区域 %s 失败: %v", schema, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "同步完成", "schema": schema})
}
