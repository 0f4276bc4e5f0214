package history

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// ModelStats aggregates attempts for one model type.
type ModelStats struct {
	ModelType string        `json:"model_type"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	AvgTime   time.Duration `json:"avg_time_ns"`
}

// Stats summarizes the whole history.
type Stats struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	ByModel   []ModelStats `json:"by_model"`
	First     time.Time    `json:"first,omitempty"`
	Last      time.Time    `json:"last,omitempty"`
}

// Stats computes aggregate counts across all recorded attempts.
func (s *Store) Stats() (Stats, error) {
	records, err := s.List(Filter{})
	if err != nil {
		return Stats{}, err
	}
	return computeStats(records), nil
}

func computeStats(records []Record) Stats {
	stats := Stats{Total: len(records)}
	if len(records) == 0 {
		return stats
	}

	// List returns append order, oldest first.
	stats.First = records[0].CreatedAt
	stats.Last = records[len(records)-1].CreatedAt

	groups := lo.GroupBy(records, func(r Record) string { return r.ModelType })
	for modelType, group := range groups {
		ms := ModelStats{ModelType: modelType, Total: len(group)}
		var elapsed time.Duration
		var timed int
		for _, r := range group {
			if r.Succeeded() {
				ms.Succeeded++
			} else {
				ms.Failed++
			}
			if r.Duration > 0 {
				elapsed += r.Duration
				timed++
			}
		}
		if timed > 0 {
			ms.AvgTime = elapsed / time.Duration(timed)
		}
		stats.Succeeded += ms.Succeeded
		stats.Failed += ms.Failed
		stats.ByModel = append(stats.ByModel, ms)
	}

	sort.Slice(stats.ByModel, func(i, j int) bool {
		return stats.ByModel[i].ModelType < stats.ByModel[j].ModelType
	})
	return stats
}
