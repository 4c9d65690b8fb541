package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tripline/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService publishes trip itineraries to a shared Google Sheet. Each
// trip owns one tab named after its id; a publish rewrites the whole tab.
type SheetsService struct {
	service *sheets.Service
	sheetID string
}

func NewSheetsService(credentialsFile, sheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{service: srv, sheetID: sheetID}, nil
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Get(s.sheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// PublishTrip rewrites the trip's tab with the current itinerary. The tab is
// created on first publish.
func (s *SheetsService) PublishTrip(ctx context.Context, trip *models.Trip) error {
	tab := tabName(trip.ID)
	if err := s.ensureTab(ctx, tab); err != nil {
		return err
	}

	values := TripRows(trip)

	rangeData := fmt.Sprintf("%s!A1:E%d", tab, len(values))
	valueRange := &sheets.ValueRange{Values: values}

	// Полностью очищаем и перезаписываем лист
	if _, err := s.service.Spreadsheets.Values.Clear(s.sheetID, tab+"!A:E", &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear trip tab: %v", err)
	}

	_, err := s.service.Spreadsheets.Values.Update(s.sheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *SheetsService) ensureTab(ctx context.Context, tab string) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.sheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %v", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == tab {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.sheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add trip tab: %v", err)
	}
	return nil
}

func tabName(tripID string) string {
	// Sheet tab names cap at 100 chars; a uuid fits comfortably.
	return "trip-" + tripID
}

// TripRows flattens a trip into sheet rows: a title row, a header row and one
// row per module in display order.
func TripRows(trip *models.Trip) [][]interface{} {
	values := [][]interface{}{
		{trip.Title, trip.Description, trip.StartDate.Format("2006-01-02"), trip.EndDate.Format("2006-01-02"), fmt.Sprintf("v%d", trip.Version)},
		{"Type", "Details", "Cost", "Booked", "Updated At"},
	}

	for _, module := range models.SortModulesForDisplay(trip.Modules) {
		values = append(values, moduleRow(module))
	}
	return values
}

func moduleRow(module models.Module) []interface{} {
	var cost interface{}
	var details string
	booked := false

	switch data := module.Data.(type) {
	case models.FlightData:
		details = fmt.Sprintf("%s %s -> %s", data.FlightNumber, data.DepartureAirport, data.ArrivalAirport)
		booked = data.IsBooked
		cost = optCost(data.Cost)
	case models.HotelData:
		details = data.HotelName
		booked = data.IsBooked
		cost = optCost(data.Cost)
	case models.TransportationData:
		details = fmt.Sprintf("%s to %s", data.Kind, data.Destination)
		booked = data.IsBooked
		cost = optCost(data.Cost)
	case models.RestaurantData:
		details = data.Name
		booked = data.HasReservation
		cost = optCost(data.Cost)
	case models.ActivityData:
		details = data.Name
		booked = data.IsBooked
		cost = optCost(data.Cost)
	case models.CostData:
		details = fmt.Sprintf("%d budget items", len(data.Breakdown))
		booked = data.IsBooked
		cost = data.TotalCost
	case models.PackingListData:
		details = data.Title
	}

	return []interface{}{
		module.Type.DisplayName(),
		details,
		cost,
		booked,
		module.UpdatedAt.Format(time.RFC3339),
	}
}

func optCost(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
