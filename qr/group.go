package qr

import (
	"math"
	"sort"
	"strconv"

	"github.com/helioscan/pacsbridge/metadata"
)

// Instance is one received record reduced to its grouping keys plus its
// reconciled metadata.
type Instance struct {
	SeriesInstanceUID string              `json:"seriesInstanceUid"`
	SeriesNumber      string              `json:"seriesNumber"`
	SeriesDescription string              `json:"seriesDescription"`
	Modality          string              `json:"modality"`
	Metadata          *metadata.Canonical `json:"metadata"`
}

// SeriesGroup is the per-series view assembled after a retrieval: the
// series identity and descriptive fields from the first instance seen,
// plus every instance that belongs to it in arrival order.
type SeriesGroup struct {
	SeriesInstanceUID string      `json:"seriesInstanceUid"`
	SeriesNumber      string      `json:"seriesNumber"`
	Description       string      `json:"description"`
	Modality          string      `json:"modality"`
	Instances         []*Instance `json:"instances"`
}

// GroupBySeries groups flat instance records by series identifier. The
// first record observed per series seeds the group's descriptive fields;
// later records only append to the instance list. Groups come back
// sorted by series number ascending; non-numeric or absent series
// numbers sort after all numeric ones.
func GroupBySeries(instances []*Instance) []*SeriesGroup {
	groups := make(map[string]*SeriesGroup)
	var order []string

	for _, instance := range instances {
		key := instance.SeriesInstanceUID
		group, exists := groups[key]
		if !exists {
			group = &SeriesGroup{
				SeriesInstanceUID: key,
				SeriesNumber:      instance.SeriesNumber,
				Description:       instance.SeriesDescription,
				Modality:          instance.Modality,
			}
			groups[key] = group
			order = append(order, key)
		}
		group.Instances = append(group.Instances, instance)
	}

	result := make([]*SeriesGroup, 0, len(order))
	for _, key := range order {
		result = append(result, groups[key])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return seriesSortKey(result[i].SeriesNumber) < seriesSortKey(result[j].SeriesNumber)
	})

	return result
}

// seriesSortKey maps a series number to its ordering key. Non-numeric
// values sort as +Inf, after every numeric series.
func seriesSortKey(seriesNumber string) float64 {
	n, err := strconv.Atoi(seriesNumber)
	if err != nil {
		return math.Inf(1)
	}
	return float64(n)
}
