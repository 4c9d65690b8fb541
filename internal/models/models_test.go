package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrip(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	trip := NewTrip("Paris Trip", "", start, end, "u1")

	assert.NotEmpty(t, trip.ID)
	assert.Equal(t, "Paris Trip", trip.Title)
	assert.Equal(t, []string{"u1"}, trip.Participants)
	assert.Empty(t, trip.Modules)
	assert.True(t, trip.HasParticipant("u1"))
	assert.False(t, trip.HasParticipant("u2"))
}

func TestParseModuleType(t *testing.T) {
	for _, mt := range AllModuleTypes {
		parsed, err := ParseModuleType(string(mt))
		require.NoError(t, err)
		assert.Equal(t, mt, parsed)
	}

	_, err := ParseModuleType("submarine")
	assert.Error(t, err)
}

func TestSortModulesForDisplay(t *testing.T) {
	modules := []Module{
		{ID: "cost1", Type: ModuleCost, Position: 0},
		{ID: "f1", Type: ModuleFlight, Position: 2},
		{ID: "h1", Type: ModuleHotel, Position: 1},
		{ID: "cost2", Type: ModuleCost, Position: 1},
		{ID: "a1", Type: ModuleActivity, Position: 0},
	}

	sorted := SortModulesForDisplay(modules)

	ids := make([]string, 0, len(sorted))
	for _, m := range sorted {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a1", "h1", "f1", "cost1", "cost2"}, ids)

	// input order untouched
	assert.Equal(t, "cost1", modules[0].ID)
}

func TestSortModulesForDisplayAllCostLast(t *testing.T) {
	modules := []Module{
		{ID: "c", Type: ModuleCost, Position: 0},
		{ID: "p", Type: ModulePackingList, Position: 99},
	}

	sorted := SortModulesForDisplay(modules)
	assert.Equal(t, "p", sorted[0].ID)
	assert.Equal(t, "c", sorted[1].ID)
}

func TestModuleDataTags(t *testing.T) {
	cases := []struct {
		data ModuleData
		want ModuleType
	}{
		{FlightData{}, ModuleFlight},
		{HotelData{}, ModuleHotel},
		{TransportationData{}, ModuleTransportation},
		{RestaurantData{}, ModuleRestaurant},
		{ActivityData{}, ModuleActivity},
		{CostData{}, ModuleCost},
		{PackingListData{}, ModulePackingList},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.data.ModuleType())
	}
}
