package export

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"tripline/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testTrip() *models.Trip {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	trip := models.NewTrip("Paris Trip", "spring break", start, end, "alice")
	trip.Modules = []models.Module{
		{
			ID:   "cost1",
			Type: models.ModuleCost,
			Data: models.CostData{TotalCost: 500, Breakdown: []models.CostItem{
				{ID: "c1", Description: "museums", Amount: 120},
			}},
			Position: 1,
		},
		{
			ID:   "f1",
			Type: models.ModuleFlight,
			Data: models.FlightData{
				FlightNumber:     "AF123",
				DepartureAirport: "AMS",
				ArrivalAirport:   "CDG",
				DepartureDate:    start,
				Cost:             models.Float(210),
				IsBooked:         true,
			},
			Position: 2,
		},
		{
			ID:       "h1",
			Type:     models.ModuleHotel,
			Data:     models.HotelData{HotelName: "Le Marais", CheckInDate: start, CheckOutDate: end, Cost: models.Float(900)},
			Position: 3,
		},
	}
	return trip
}

func TestExportWritesWorkbook(t *testing.T) {
	logger := zerolog.New(io.Discard)
	exporter := NewExcelExporter(t.TempDir(), &logger)

	trip := testTrip()
	path, err := exporter.Export(context.Background(), trip)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Itinerary", "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "Paris Trip")

	// Cost module sorts after the regular modules.
	first, err := f.GetCellValue("Itinerary", "A3")
	require.NoError(t, err)
	assert.Equal(t, "Flight", first)

	last, err := f.GetCellValue("Itinerary", "A5")
	require.NoError(t, err)
	assert.Equal(t, "Cost", last)

	booked, err := f.GetCellValue("Itinerary", "D3")
	require.NoError(t, err)
	assert.Equal(t, "Yes", booked)
}

func TestExportOverwritesPerTrip(t *testing.T) {
	logger := zerolog.New(io.Discard)
	exporter := NewExcelExporter(t.TempDir(), &logger)

	trip := testTrip()
	first, err := exporter.Export(context.Background(), trip)
	require.NoError(t, err)

	trip.Title = "Renamed Trip"
	second, err := exporter.Export(context.Background(), trip)
	require.NoError(t, err)
	assert.Equal(t, first, second, "stable file name per trip")

	f, err := excelize.OpenFile(second)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Itinerary", "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "Renamed Trip")
}

func TestDescribeModuleVariants(t *testing.T) {
	summary, cost, booked := describeModule(models.Module{
		Type: models.ModulePackingList,
		Data: models.PackingListData{Title: "Beach", Items: []models.PackingItem{
			{ID: "p1", Name: "towel", IsChecked: true},
			{ID: "p2", Name: "sunscreen"},
		}},
	})
	assert.Equal(t, "Beach: 1/2 packed", summary)
	assert.Nil(t, cost)
	assert.False(t, booked)

	summary, cost, _ = describeModule(models.Module{
		Type: models.ModuleRestaurant,
		Data: models.RestaurantData{Name: "Chez Panisse", HasReservation: true, ReservationName: "Alice", Cost: models.Float(80)},
	})
	assert.Contains(t, summary, "Chez Panisse")
	assert.Contains(t, summary, "Alice")
	require.NotNil(t, cost)
	assert.Equal(t, 80.0, *cost)
}
