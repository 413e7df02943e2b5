/*
 * @module service/database/migrate
 * @description 数据库迁移，创建和更新挖掘运行、规则结果和定时扫描计划表
 * @architecture 数据访问层 - 迁移管理
 * @stateFlow Runs once at startup, after Open and before any repository is used
 * @rules Table structure always follows the models; the warehouse star schema is never migrated here
 * @dependencies github.com/hanamichi-me/DW-traffic/service/models, gorm.io/gorm
 * @refs service/models/mining.go
 */

package database

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/models"
)

// AutoMigrate migrates the run store tables.
func AutoMigrate(db *gorm.DB) error {
	slog.Info("starting database migration")

	// runs and their rules
	if err := db.AutoMigrate(
		&models.MiningRun{},
		&models.MinedRule{},
	); err != nil {
		return fmt.Errorf("database: migrate runs: %w", err)
	}

	// scheduling
	if err := db.AutoMigrate(&models.ScheduledSweep{}); err != nil {
		return fmt.Errorf("database: migrate schedules: %w", err)
	}

	slog.Info("database migration finished")
	return nil
}
