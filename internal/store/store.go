// Package store 持有样本记录的唯一内存副本，并把每次变更镜像到本地库。
// 流式协调器是会话期间唯一的写入方，UI/API 只读。
package store

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/repository"
)

// 状态推进顺序。error 从任意状态可达且吸收。
var statusRank = map[string]int{
	model.StatusUploading:  0,
	model.StatusProcessing: 1,
	model.StatusComplete:   2,
}

type Store struct {
	repo *repository.SampleRepository

	mu          sync.RWMutex
	samples     map[string]*model.Sample
	initialized bool

	subMu sync.Mutex
	subs  map[int]chan string
	nextSub int
}

func New(repo *repository.SampleRepository) *Store {
	return &Store{
		repo:    repo,
		samples: make(map[string]*model.Sample),
		subs:    make(map[int]chan string),
	}
}

// Initialize 从本地库加载全部记录。幂等，重复调用不产生重复数据。
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	samples, err := s.repo.List()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	s.samples = make(map[string]*model.Sample, len(samples))
	for _, sample := range samples {
		s.samples[sample.FileID] = sample
	}
	s.initialized = true
	return nil
}

// Add 插入新记录并立即持久化。存储层错误向上抛出，
// 由调用方决定是否仅记日志（上传流程不应因缓存失败中断）。
func (s *Store) Add(sample *model.Sample) error {
	if sample.Logs == nil {
		sample.Logs = model.StringArray{}
	}
	if sample.Progress == nil {
		sample.Progress = model.ProgressSteps{}
	}
	if sample.VerificationUpdates == nil {
		sample.VerificationUpdates = model.VerificationUpdates{}
	}

	s.mu.Lock()
	if err := s.repo.Save(sample); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist sample %s: %w", sample.FileID, err)
	}
	copied := *sample
	s.samples[sample.FileID] = &copied
	s.mu.Unlock()

	s.notify(sample.FileID)
	return nil
}

// SetStatus 状态只能前向推进；error 吸收；complete 不回退。
// 对不存在的 fileId 静默忽略（过期连接的回调）。
func (s *Store) SetStatus(fileID, status string) {
	s.mutate(fileID, func(sample *model.Sample) bool {
		if sample.Status == model.StatusError {
			return false
		}
		if status == model.StatusError {
			sample.Status = model.StatusError
			return true
		}
		if statusRank[status] < statusRank[sample.Status] {
			return false
		}
		if sample.Status == status {
			return false
		}
		sample.Status = status
		return true
	})
}

// SetError 置错误状态并记录提示信息
func (s *Store) SetError(fileID, message string) {
	s.mutate(fileID, func(sample *model.Sample) bool {
		if sample.Status == model.StatusError && sample.ErrorMessage == message {
			return false
		}
		sample.Status = model.StatusError
		sample.ErrorMessage = message
		return true
	})
}

// AppendLog 日志只追加，永不截断或重排
func (s *Store) AppendLog(fileID, line string) {
	s.mutate(fileID, func(sample *model.Sample) bool {
		sample.Logs = append(sample.Logs, line)
		return true
	})
}

// AppendProgress 同一 step 可重复出现，消费方取最新
func (s *Store) AppendProgress(fileID string, step model.ProgressStep) {
	s.mutate(fileID, func(sample *model.Sample) bool {
		sample.Progress = append(sample.Progress, step)
		return true
	})
}

// SetAnalysisResult 整体覆盖，不做合并
func (s *Store) SetAnalysisResult(fileID string, result *model.AnalysisResult) {
	s.mutate(fileID, func(sample *model.Sample) bool {
		sample.LatestAnalysis = result
		return true
	})
}

func (s *Store) AppendVerificationUpdate(fileID string, update model.VerificationUpdate) {
	s.mutate(fileID, func(sample *model.Sample) bool {
		sample.VerificationUpdates = append(sample.VerificationUpdates, update)
		return true
	})
}

// Get 返回记录副本；缺失时 ok 为 false，不报错
func (s *Store) Get(fileID string) (model.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.samples[fileID]
	if !ok {
		return model.Sample{}, false
	}
	return *sample, true
}

// List 按上传时间倒序返回副本
func (s *Store) List() []model.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Sample, 0, len(s.samples))
	for _, sample := range s.samples {
		result = append(result, *sample)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadDate.After(result[j].UploadDate)
	})
	return result
}

// Delete 同时删除内存与持久层；不存在时为空操作
func (s *Store) Delete(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(fileID); err != nil {
		return fmt.Errorf("failed to delete sample %s: %w", fileID, err)
	}
	delete(s.samples, fileID)
	return nil
}

// Clear 清空全部记录
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteAll(); err != nil {
		return fmt.Errorf("failed to clear samples: %w", err)
	}
	s.samples = make(map[string]*model.Sample)
	return nil
}

// Subscribe 返回变更通知通道（携带发生变更的 fileId）和取消函数。
// 通道写入不阻塞：消费不及时的通知被丢弃，观察方随时可全量拉取。
func (s *Store) Subscribe() (<-chan string, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan string, 16)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// mutate 读-改-写 + 整条重持久化。持久化失败只记日志，
// 本会话内以内存状态为准。
func (s *Store) mutate(fileID string, fn func(*model.Sample) bool) {
	s.mu.Lock()
	sample, ok := s.samples[fileID]
	if !ok {
		s.mu.Unlock()
		return
	}

	if !fn(sample) {
		s.mu.Unlock()
		return
	}

	if err := s.repo.Save(sample); err != nil {
		log.Printf("Failed to persist sample %s: %v", fileID, err)
	}
	s.mu.Unlock()

	s.notify(fileID)
}

func (s *Store) notify(fileID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- fileID:
		default:
		}
	}
}
