package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupBySeries(t *testing.T) {
	instances := []*Instance{
		{SeriesInstanceUID: "A", SeriesNumber: "2", SeriesDescription: "Axial", Modality: "CT"},
		{SeriesInstanceUID: "B", SeriesNumber: "1", SeriesDescription: "Scout", Modality: "CT"},
		{SeriesInstanceUID: "A", SeriesNumber: "2", SeriesDescription: "Axial", Modality: "CT"},
	}

	groups := GroupBySeries(instances)
	require.Len(t, groups, 2)

	// Sorted by series number ascending.
	assert.Equal(t, "B", groups[0].SeriesInstanceUID)
	assert.Equal(t, "A", groups[1].SeriesInstanceUID)
	assert.Len(t, groups[0].Instances, 1)
	assert.Len(t, groups[1].Instances, 2)
}

func TestGroupBySeries_FirstInstanceSeedsGroup(t *testing.T) {
	instances := []*Instance{
		{SeriesInstanceUID: "A", SeriesNumber: "1", SeriesDescription: "First", Modality: "US"},
		{SeriesInstanceUID: "A", SeriesNumber: "9", SeriesDescription: "Later", Modality: "CT"},
	}

	groups := GroupBySeries(instances)
	require.Len(t, groups, 1)
	assert.Equal(t, "1", groups[0].SeriesNumber)
	assert.Equal(t, "First", groups[0].Description)
	assert.Equal(t, "US", groups[0].Modality)
	assert.Len(t, groups[0].Instances, 2)
}

func TestGroupBySeries_NonNumericSortsLast(t *testing.T) {
	instances := []*Instance{
		{SeriesInstanceUID: "A", SeriesNumber: "N/A"},
		{SeriesInstanceUID: "B", SeriesNumber: "10"},
		{SeriesInstanceUID: "C", SeriesNumber: ""},
		{SeriesInstanceUID: "D", SeriesNumber: "2"},
	}

	groups := GroupBySeries(instances)
	require.Len(t, groups, 4)
	assert.Equal(t, "D", groups[0].SeriesInstanceUID)
	assert.Equal(t, "B", groups[1].SeriesInstanceUID)
	// Non-numeric series keep their arrival order after the numeric ones.
	assert.Equal(t, "A", groups[2].SeriesInstanceUID)
	assert.Equal(t, "C", groups[3].SeriesInstanceUID)
}

func TestGroupBySeries_Empty(t *testing.T) {
	assert.Empty(t, GroupBySeries(nil))
}
