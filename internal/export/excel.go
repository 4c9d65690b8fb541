package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tripline/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes one trip's itinerary to an xlsx workbook on disk.
type ExcelExporter struct {
	path   string
	logger zerolog.Logger
}

func NewExcelExporter(path string, logger *zerolog.Logger) *ExcelExporter {
	return &ExcelExporter{
		path:   path,
		logger: logger.With().Str("component", "excel_export").Logger(),
	}
}

// PublishTrip satisfies the export worker contract: republish the workbook
// after every trip write.
func (e *ExcelExporter) PublishTrip(ctx context.Context, trip *models.Trip) error {
	_, err := e.Export(ctx, trip)
	return err
}

// Export writes the workbook and returns its path. The file name is stable
// per trip, so re-exports overwrite the previous version.
func (e *ExcelExporter) Export(_ context.Context, trip *models.Trip) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Itinerary"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s (%s - %s)",
		trip.Title, trip.StartDate.Format("02.01.2006"), trip.EndDate.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "E1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Type", "Details", "Cost", "Booked", "Done"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	modules := models.SortModulesForDisplay(trip.Modules)

	row := 3
	var total float64
	for _, module := range modules {
		summary, cost, booked := describeModule(module)
		if cost != nil {
			total += *cost
		}

		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), module.Type.DisplayName())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), summary)
		if cost != nil {
			_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), *cost)
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), boolToYesNo(booked))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), boolToYesNo(module.IsCompleted))
		row++
	}

	row++
	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	totalCell := fmt.Sprintf("A%d", row)
	_ = f.SetCellValue(sheetName, totalCell, "Total")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), total)
	_ = f.SetCellStyle(sheetName, totalCell, fmt.Sprintf("C%d", row), totalStyle)

	_ = f.SetColWidth(sheetName, "A", "A", 16)
	_ = f.SetColWidth(sheetName, "B", "B", 50)
	_ = f.SetColWidth(sheetName, "C", "E", 10)

	_ = f.DeleteSheet("Sheet1")

	filePath := filepath.Join(e.path, fmt.Sprintf("trip_%s.xlsx", trip.ID))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Str("trip_id", trip.ID).Msg("Excel itinerary created")
	return filePath, nil
}

// describeModule flattens a payload into one display line.
func describeModule(module models.Module) (summary string, cost *float64, booked bool) {
	switch data := module.Data.(type) {
	case models.FlightData:
		summary = fmt.Sprintf("%s %s -> %s, %s", data.FlightNumber, data.DepartureAirport, data.ArrivalAirport,
			formatDate(data.DepartureDate))
		return summary, data.Cost, data.IsBooked
	case models.HotelData:
		summary = fmt.Sprintf("%s, %s - %s", data.HotelName,
			formatDate(data.CheckInDate), formatDate(data.CheckOutDate))
		return summary, data.Cost, data.IsBooked
	case models.TransportationData:
		summary = fmt.Sprintf("%s to %s", data.Kind, data.Destination)
		return summary, data.Cost, data.IsBooked
	case models.RestaurantData:
		summary = data.Name
		if data.HasReservation {
			summary += fmt.Sprintf(" (reservation: %s)", data.ReservationName)
		}
		return summary, data.Cost, data.HasReservation
	case models.ActivityData:
		summary = data.Name
		if data.Location != "" {
			summary += ", " + data.Location
		}
		return summary, data.Cost, data.IsBooked
	case models.CostData:
		return fmt.Sprintf("Budget of %d items", len(data.Breakdown)), &data.TotalCost, data.IsBooked
	case models.PackingListData:
		checked := 0
		for _, item := range data.Items {
			if item.IsChecked {
				checked++
			}
		}
		return fmt.Sprintf("%s: %d/%d packed", data.Title, checked, len(data.Items)), nil, false
	default:
		return string(module.Type), nil, false
	}
}

func formatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

func boolToYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
