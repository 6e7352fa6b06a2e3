package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/edna_go_client/internal/model"
)

type SampleRepository struct {
	db *gorm.DB
}

func NewSampleRepository(db *gorm.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

func (r *SampleRepository) Create(sample *model.Sample) error {
	return r.db.Create(sample).Error
}

// Save 整条覆盖写（INSERT OR REPLACE 语义）
func (r *SampleRepository) Save(sample *model.Sample) error {
	return r.db.Save(sample).Error
}

// GetByFileID 不存在时返回 (nil, nil)
func (r *SampleRepository) GetByFileID(fileID string) (*model.Sample, error) {
	var sample model.Sample
	err := r.db.Where("file_id = ?", fileID).First(&sample).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

// List 按上传时间倒序
func (r *SampleRepository) List() ([]*model.Sample, error) {
	var samples []*model.Sample
	err := r.db.Order("upload_date DESC").Find(&samples).Error
	if err != nil {
		return nil, err
	}
	return samples, nil
}

func (r *SampleRepository) Delete(fileID string) error {
	return r.db.Where("file_id = ?", fileID).Delete(&model.Sample{}).Error
}

func (r *SampleRepository) DeleteAll() error {
	return r.db.Where("1 = 1").Delete(&model.Sample{}).Error
}

func (r *SampleRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.Sample{}).Count(&count).Error
	return count, err
}
