package cluster

import (
	"sort"

	"github.com/crimson-sun/faultline/internal/model"
)

// Agreement is the Rand index of two assignments over the case ids that are
// non-noise in both: the fraction of id pairs that both runs either place
// together or keep apart. It returns 0 when fewer than two ids qualify.
func Agreement(a, b model.ClusterAssignment) float64 {
	var ids []string
	for id, la := range a.Labels {
		if la == model.NoiseLabel {
			continue
		}
		if lb, ok := b.Labels[id]; ok && lb != model.NoiseLabel {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var agree, total int
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sameA := a.Labels[ids[i]] == a.Labels[ids[j]]
			sameB := b.Labels[ids[i]] == b.Labels[ids[j]]
			if sameA == sameB {
				agree++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(agree) / float64(total)
}
