package stream

import (
	"regexp"
	"strconv"
	"strings"
)

// NovelProbabilityThreshold 比对置信度低于此值的属计入潜在新类群
const NovelProbabilityThreshold = 80.0

// description 字段的固定文本格式：
// "<Genus> (Class: <ClassName>, <N> sequences, <P>%)"
// 后端暂不提供结构化字段，只能按原样提取；不匹配的输入跳过累计，不报错。
var (
	genusRe   = regexp.MustCompile(`^([^(]+)`)
	classRe   = regexp.MustCompile(`Class:\s*([^,]+)`)
	countRe   = regexp.MustCompile(`(\d+)\s+sequences`)
	percentRe = regexp.MustCompile(`([\d.]+)%\)`)
)

// TaxaRecord 从校验更新中提取出的一个属的比对结果
type TaxaRecord struct {
	Name        string  `json:"name"`
	Genus       string  `json:"genus"`
	Class       string  `json:"class"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
	Percentage  float64 `json:"percentage"`
}

// ParseTaxaDescription 按固定格式提取。genus 和 class 缺一不可，
// count/percentage 缺失时置零。
func ParseTaxaDescription(description string, matchPercentage float64) (TaxaRecord, bool) {
	genusMatch := genusRe.FindStringSubmatch(description)
	classMatch := classRe.FindStringSubmatch(description)
	if genusMatch == nil || classMatch == nil {
		return TaxaRecord{}, false
	}

	genus := strings.TrimSpace(genusMatch[1])
	if genus == "" {
		return TaxaRecord{}, false
	}

	record := TaxaRecord{
		Name:        genus,
		Genus:       genus,
		Class:       strings.TrimSpace(classMatch[1]),
		Probability: matchPercentage,
	}

	if countMatch := countRe.FindStringSubmatch(description); countMatch != nil {
		record.Count, _ = strconv.Atoi(countMatch[1])
	}
	if percentMatch := percentRe.FindStringSubmatch(description); percentMatch != nil {
		record.Percentage, _ = strconv.ParseFloat(percentMatch[1], 64)
	}

	return record, true
}

// taxaAccumulator 按属累计校验结果，同属后到覆盖先到。
// 一次会话内跨多条 verification_update 累计，complete 时一次性取走。
type taxaAccumulator struct {
	byGenus map[string]TaxaRecord
	order   []string
}

func newTaxaAccumulator() *taxaAccumulator {
	return &taxaAccumulator{byGenus: make(map[string]TaxaRecord)}
}

func (a *taxaAccumulator) put(record TaxaRecord) {
	if _, seen := a.byGenus[record.Genus]; !seen {
		a.order = append(a.order, record.Genus)
	}
	a.byGenus[record.Genus] = record
}

// flush 取走累计结果（首次出现顺序）并清空，供下一次会话复用
func (a *taxaAccumulator) flush() []TaxaRecord {
	if len(a.byGenus) == 0 {
		return nil
	}
	records := make([]TaxaRecord, 0, len(a.byGenus))
	for _, genus := range a.order {
		records = append(records, a.byGenus[genus])
	}
	a.byGenus = make(map[string]TaxaRecord)
	a.order = nil
	return records
}

// NovelTaxaCount 置信度低于阈值的属数
func NovelTaxaCount(records []TaxaRecord) int {
	count := 0
	for _, record := range records {
		if record.Probability < NovelProbabilityThreshold {
			count++
		}
	}
	return count
}
