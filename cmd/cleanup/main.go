package main

import (
	"flag"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/edna_go_client/config"
	"github.com/qs3c/edna_go_client/internal/database"
	"github.com/qs3c/edna_go_client/internal/model"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, don't actually delete rows")
	errorExpire  = flag.Int("error-expire", 30, "Days to keep failed sample records")
	staleExpire  = flag.Int("stale-expire", 7, "Days after which in-progress records are considered abandoned")
	historyLimit = flag.Int("history-limit", 0, "Override upload history cap (0 = use config)")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	maxItems := cfg.History.MaxItems
	if *historyLimit > 0 {
		maxItems = *historyLimit
	}

	deleted := 0
	deleted += cleanFailedSamples(db, *errorExpire)
	deleted += markAbandonedSamples(db, *staleExpire)
	deleted += trimHistory(db, maxItems)

	if *dryRun {
		log.Printf("Dry run complete, %d rows would be affected", deleted)
	} else {
		log.Printf("Cleanup complete, %d rows affected", deleted)
	}
}

// cleanFailedSamples 删除过期的失败记录（错误信息早已看过，没有保留价值）
func cleanFailedSamples(db *gorm.DB, expireDays int) int {
	cutoff := time.Now().AddDate(0, 0, -expireDays)

	var samples []model.Sample
	if err := db.Where("status = ? AND upload_date < ?", model.StatusError, cutoff).Find(&samples).Error; err != nil {
		log.Printf("Failed to scan failed samples: %v", err)
		return 0
	}
	if len(samples) == 0 {
		return 0
	}

	log.Printf("📦 Found %d failed samples older than %d days", len(samples), expireDays)
	for _, sample := range samples {
		log.Printf("  - %s (%s, %s)", sample.FileID, sample.FileName, sample.UploadDate.Format("2006-01-02"))
	}

	if !*dryRun {
		if err := db.Where("status = ? AND upload_date < ?", model.StatusError, cutoff).
			Delete(&model.Sample{}).Error; err != nil {
			log.Printf("Failed to delete failed samples: %v", err)
			return 0
		}
	}
	return len(samples)
}

// markAbandonedSamples 卡在 uploading/processing 且早已无人跟踪的记录标记为 error
func markAbandonedSamples(db *gorm.DB, staleDays int) int {
	cutoff := time.Now().AddDate(0, 0, -staleDays)

	var count int64
	query := db.Model(&model.Sample{}).
		Where("status IN ? AND upload_date < ?", []string{model.StatusUploading, model.StatusProcessing}, cutoff)
	if err := query.Count(&count).Error; err != nil {
		log.Printf("Failed to count stale samples: %v", err)
		return 0
	}
	if count == 0 {
		return 0
	}

	log.Printf("⏱  Found %d samples stuck in progress for over %d days", count, staleDays)

	if !*dryRun {
		err := db.Model(&model.Sample{}).
			Where("status IN ? AND upload_date < ?", []string{model.StatusUploading, model.StatusProcessing}, cutoff).
			Updates(map[string]interface{}{
				"status":        model.StatusError,
				"error_message": "Analysis abandoned: no terminal event received",
			}).Error
		if err != nil {
			log.Printf("Failed to mark stale samples: %v", err)
			return 0
		}
	}
	return int(count)
}

// trimHistory 上传历史超过上限时淘汰最旧的（正常由写路径维护，这里兜底）
func trimHistory(db *gorm.DB, maxItems int) int {
	var count int64
	if err := db.Model(&model.HistoryItem{}).Count(&count).Error; err != nil {
		log.Printf("Failed to count history: %v", err)
		return 0
	}
	excess := int(count) - maxItems
	if excess <= 0 {
		return 0
	}

	var oldest []model.HistoryItem
	if err := db.Order("upload_date ASC").Limit(excess).Find(&oldest).Error; err != nil {
		log.Printf("Failed to scan history: %v", err)
		return 0
	}

	log.Printf("🗂  History over cap by %d entries", excess)
	for _, item := range oldest {
		log.Printf("  - %s (%s)", item.FileName, item.UploadDate.Format("2006-01-02"))
	}

	if !*dryRun {
		for _, item := range oldest {
			if err := db.Delete(&model.HistoryItem{}, "id = ?", item.ID).Error; err != nil {
				log.Printf("Failed to delete history %s: %v", item.ID, err)
			}
		}
	}
	return excess
}
