package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"WeaselSync/internal/api"
	"WeaselSync/internal/config"
	"WeaselSync/internal/cronrunner"
	"WeaselSync/internal/model"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ensureDatabaseExists 仓库库不存在时，连到不带库名的 DSN 创建之（幂等）。
// dsn 须为 go-sql-driver 格式，如 user:pass@tcp(host:3306)/weaselbot?charset=utf8mb4
func ensureDatabaseExists(dsn string) error {
	dsnCfg, err := gosqlmysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	dbname := strings.TrimSpace(dsnCfg.DBName)
	if dbname == "" {
		return nil
	}
	dsnCfg.DBName = ""
	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return err
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Printf("关闭引导连接失败: %v", err)
		}
	}(db)
	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS " + "`" + strings.ReplaceAll(dbname, "`", "``") + "`")
	return err
}

func main() {
	// 1. 加载配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 2. 初始化日志
	logrusLogger := logrus.New()
	logrusLogger.SetLevel(logrus.InfoLevel)
	logrusLogger.Info("配置文件加载成功")

	gormLogger := logger.Default.LogMode(logger.Warn)

	// 3. 初始化 MySQL 连接（仓库库不存在则先创建再连）
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Unknown database") || strings.Contains(err.Error(), "1049") {
			logrusLogger.Info("仓库数据库不存在，尝试自动创建…")
			if e := ensureDatabaseExists(cfg.MySQL.DSN); e != nil {
				logrusLogger.Fatalf("创建数据库失败: %v", e)
			}
			db, err = gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{Logger: gormLogger})
		}
		if err != nil {
			logrusLogger.Fatalf("连接MySQL失败: %v", err)
		}
	}
	logrusLogger.Info("MySQL连接成功")

	// 4. 连接池：整轮同步跑几分钟，连接按操作取用、用完即还
	sqlDB, err := db.DB()
	if err != nil {
		logrusLogger.Fatalf("获取SQL DB失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	// 5. 仓库表不存在则自动创建（按外键依赖顺序迁移）
	if err := db.AutoMigrate(
		&model.Region{},
		&model.User{},
		&model.UserDup{},
		&model.AO{},
		&model.Beatdown{},
		&model.Attendance{},
	); err != nil {
		logrusLogger.Fatalf("数据库表结构迁移失败: %v", err)
	}
	logrusLogger.Info("仓库表结构检查完成（不存在则已创建）")

	// 6. 配置Gin运行模式（从配置读取：debug/release）
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()
	pprof.Register(r)

	// 7. 注册API路由
	syncHandler := api.NewSyncHandler(db, logrusLogger, cfg)
	r.POST("/sync/run", syncHandler.RunAllHandler)
	r.POST("/sync/region/:schema", syncHandler.RunRegionHandler)

	reportHandler := api.NewReportHandler(db, logrusLogger)
	r.GET("/api/regions", reportHandler.ListRegions)
	r.GET("/api/users", reportHandler.ListUsers)
	r.GET("/api/beatdowns", reportHandler.ListBeatdowns)

	// 8. 定时调度全量同步
	if cfg.Sync.Cron != "" {
		runner := cronrunner.New(logrusLogger, context.Background())
		if _, err := runner.Add(cfg.Sync.Cron, func(ctx context.Context) {
			if err := syncHandler.Pipeline().RunAll(ctx); err != nil {
				logrusLogger.Errorf("定时同步失败: %v", err)
			}
		}); err != nil {
			logrusLogger.Fatalf("注册定时同步失败: %v", err)
		}
		runner.Start()
		defer runner.Stop()
	}

	// 9. 启动服务（从配置读取端口）
	port := cfg.Server.Port
	logrusLogger.Infof("服务启动成功，端口：%d", port)
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		logrusLogger.Fatalf("启动服务失败: %v", err)
	}
}
