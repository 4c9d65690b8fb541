package google

import (
	"testing"
	"time"

	"tripline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripRows(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	trip := models.NewTrip("Paris Trip", "spring break", start, end, "alice")
	trip.Version = 7
	trip.Modules = []models.Module{
		{
			ID:       "cost1",
			Type:     models.ModuleCost,
			Data:     models.CostData{TotalCost: 300},
			Position: 1,
		},
		{
			ID:       "f1",
			Type:     models.ModuleFlight,
			Data:     models.FlightData{FlightNumber: "AF123", DepartureAirport: "AMS", ArrivalAirport: "CDG", IsBooked: true, Cost: models.Float(210)},
			Position: 2,
		},
	}

	rows := TripRows(trip)
	require.Len(t, rows, 4)

	assert.Equal(t, "Paris Trip", rows[0][0])
	assert.Equal(t, "v7", rows[0][4])
	assert.Equal(t, "Type", rows[1][0])

	// Flight before cost, even though positions say otherwise.
	assert.Equal(t, "Flight", rows[2][0])
	assert.Equal(t, "AF123 AMS -> CDG", rows[2][1])
	assert.Equal(t, 210.0, rows[2][2])
	assert.Equal(t, true, rows[2][3])

	assert.Equal(t, "Cost", rows[3][0])
	assert.Equal(t, 300.0, rows[3][2])
}

func TestModuleRowOptionalCost(t *testing.T) {
	row := moduleRow(models.Module{
		Type: models.ModuleHotel,
		Data: models.HotelData{HotelName: "Le Marais"},
	})
	assert.Equal(t, "Le Marais", row[1])
	assert.Equal(t, "", row[2], "missing cost renders as empty cell")
}

func TestTabName(t *testing.T) {
	assert.Equal(t, "trip-abc", tabName("abc"))
}
