package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/edna_go_client/internal/model"
)

type HistoryRepository struct {
	db       *gorm.DB
	maxItems int
}

func NewHistoryRepository(db *gorm.DB, maxItems int) *HistoryRepository {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &HistoryRepository{db: db, maxItems: maxItems}
}

// Add 插入一条历史，超过上限时淘汰最旧的（FIFO，非 LRU）
func (r *HistoryRepository) Add(item *model.HistoryItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.HistoryItem{}).Count(&count).Error; err != nil {
			return err
		}
		if count <= int64(r.maxItems) {
			return nil
		}

		var oldest []model.HistoryItem
		if err := tx.Order("upload_date ASC").Limit(int(count) - r.maxItems).Find(&oldest).Error; err != nil {
			return err
		}
		for _, old := range oldest {
			if err := tx.Delete(&model.HistoryItem{}, "id = ?", old.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Update 部分字段更新，终止事件写入统计值
func (r *HistoryRepository) Update(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.HistoryItem{}).Where("id = ?", id).Updates(fields).Error
}

func (r *HistoryRepository) GetByID(id string) (*model.HistoryItem, error) {
	var item model.HistoryItem
	err := r.db.Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// List 新的在前
func (r *HistoryRepository) List() ([]*model.HistoryItem, error) {
	var items []*model.HistoryItem
	err := r.db.Order("upload_date DESC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *HistoryRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.HistoryItem{}).Error
}

func (r *HistoryRepository) Clear() error {
	return r.db.Where("1 = 1").Delete(&model.HistoryItem{}).Error
}
