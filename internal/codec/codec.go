// Package codec maps module payloads and trip documents to and from the
// untyped string-keyed maps stored in the document store. Decoding is total:
// every field independently falls back to a zero value when missing or of the
// wrong wire type. The only hard failure is an unrecognized type tag.
package codec

import (
	"errors"
	"fmt"
	"time"

	"tripline/internal/models"
)

// ErrUnknownModuleType signals a payload whose tag is outside the closed set.
// The caller drops the offending module.
var ErrUnknownModuleType = errors.New("unknown module type")

// EncodeModuleData emits the fixed field set for the payload's variant.
// Optional numeric fields serialize as 0.0 when absent, which loses the
// absence signal: decoding yields a pointer to 0.0, not nil.
func EncodeModuleData(data models.ModuleData) map[string]any {
	switch d := data.(type) {
	case models.FlightData:
		return map[string]any{
			"type":             string(models.ModuleFlight),
			"flightNumber":     d.FlightNumber,
			"departureDate":    encodeTime(d.DepartureDate),
			"departureTime":    encodeTime(d.DepartureTime),
			"departureAirport": d.DepartureAirport,
			"arrivalAirport":   d.ArrivalAirport,
			"cost":             optFloat(d.Cost),
			"notes":            d.Notes,
			"isBooked":         d.IsBooked,
			"bookingReference": d.BookingReference,
		}
	case models.HotelData:
		return map[string]any{
			"type":             string(models.ModuleHotel),
			"hotelName":        d.HotelName,
			"checkInDate":      encodeTime(d.CheckInDate),
			"checkOutDate":     encodeTime(d.CheckOutDate),
			"roomType":         d.RoomType,
			"address":          d.Address,
			"cost":             optFloat(d.Cost),
			"notes":            d.Notes,
			"isBooked":         d.IsBooked,
			"bookingReference": d.BookingReference,
		}
	case models.TransportationData:
		return map[string]any{
			"type":              string(models.ModuleTransportation),
			"transportType":     d.Kind,
			"destination":       d.Destination,
			"departureLocation": d.DepartureLocation,
			"duration":          d.Duration,
			"startDate":         encodeTime(d.StartDate),
			"departureTime":     encodeTime(d.DepartureTime),
			"arrivalTime":       encodeTime(d.ArrivalTime),
			"cost":              optFloat(d.Cost),
			"notes":             d.Notes,
			"isBooked":          d.IsBooked,
			"bookingReference":  d.BookingReference,
		}
	case models.RestaurantData:
		return map[string]any{
			"type":            string(models.ModuleRestaurant),
			"name":            d.Name,
			"time":            encodeTime(d.Time),
			"startDate":       encodeTime(d.StartDate),
			"hasReservation":  d.HasReservation,
			"reservationName": d.ReservationName,
			"cuisine":         d.Cuisine,
			"rating":          optFloat(d.Rating),
			"cost":            optFloat(d.Cost),
			"notes":           d.Notes,
		}
	case models.ActivityData:
		return map[string]any{
			"type":             string(models.ModuleActivity),
			"name":             d.Name,
			"activityType":     d.Kind,
			"location":         d.Location,
			"address":          d.Address,
			"startDate":        encodeTime(d.StartDate),
			"startTime":        encodeTime(d.StartTime),
			"endTime":          encodeTime(d.EndTime),
			"duration":         d.Duration,
			"cost":             optFloat(d.Cost),
			"notes":            d.Notes,
			"isBooked":         d.IsBooked,
			"bookingReference": d.BookingReference,
		}
	case models.CostData:
		breakdown := make([]any, 0, len(d.Breakdown))
		for _, item := range d.Breakdown {
			breakdown = append(breakdown, map[string]any{
				"id":          item.ID,
				"moduleId":    item.ModuleID,
				"description": item.Description,
				"amount":      item.Amount,
			})
		}
		return map[string]any{
			"type":             string(models.ModuleCost),
			"totalCost":        d.TotalCost,
			"breakdown":        breakdown,
			"isBooked":         d.IsBooked,
			"bookingReference": d.BookingReference,
		}
	case models.PackingListData:
		items := make([]any, 0, len(d.Items))
		for _, item := range d.Items {
			items = append(items, map[string]any{
				"id":        item.ID,
				"name":      item.Name,
				"isChecked": item.IsChecked,
				"category":  item.Category,
				"notes":     item.Notes,
			})
		}
		return map[string]any{
			"type":  string(models.ModulePackingList),
			"title": d.Title,
			"items": items,
			"notes": d.Notes,
		}
	default:
		return map[string]any{}
	}
}

// DecodeModuleData reconstructs a payload for the given tag. Individual
// fields never fail: strings default to "", bools to false, times to now.
func DecodeModuleData(data map[string]any, tag models.ModuleType) (models.ModuleData, error) {
	switch tag {
	case models.ModuleFlight:
		return models.FlightData{
			FlightNumber:     getString(data, "flightNumber"),
			DepartureDate:    getTime(data, "departureDate"),
			DepartureTime:    getTime(data, "departureTime"),
			DepartureAirport: getString(data, "departureAirport"),
			ArrivalAirport:   getString(data, "arrivalAirport"),
			Cost:             getFloatPtr(data, "cost"),
			Notes:            getString(data, "notes"),
			IsBooked:         getBool(data, "isBooked"),
			BookingReference: getString(data, "bookingReference"),
		}, nil
	case models.ModuleHotel:
		return models.HotelData{
			HotelName:        getString(data, "hotelName"),
			CheckInDate:      getTime(data, "checkInDate"),
			CheckOutDate:     getTime(data, "checkOutDate"),
			RoomType:         getString(data, "roomType"),
			Address:          getString(data, "address"),
			Cost:             getFloatPtr(data, "cost"),
			Notes:            getString(data, "notes"),
			IsBooked:         getBool(data, "isBooked"),
			BookingReference: getString(data, "bookingReference"),
		}, nil
	case models.ModuleTransportation:
		return models.TransportationData{
			Kind:              getString(data, "transportType"),
			Destination:       getString(data, "destination"),
			DepartureLocation: getString(data, "departureLocation"),
			Duration:          getString(data, "duration"),
			DepartureTime:     getTime(data, "departureTime"),
			ArrivalTime:       getTime(data, "arrivalTime"),
			StartDate:         getTime(data, "startDate"),
			Cost:              getFloatPtr(data, "cost"),
			Notes:             getString(data, "notes"),
			IsBooked:          getBool(data, "isBooked"),
			BookingReference:  getString(data, "bookingReference"),
		}, nil
	case models.ModuleRestaurant:
		return models.RestaurantData{
			Name:            getString(data, "name"),
			Time:            getTime(data, "time"),
			StartDate:       getTime(data, "startDate"),
			HasReservation:  getBool(data, "hasReservation"),
			ReservationName: getString(data, "reservationName"),
			Cuisine:         getString(data, "cuisine"),
			Rating:          getFloatPtr(data, "rating"),
			Cost:            getFloatPtr(data, "cost"),
			Notes:           getString(data, "notes"),
		}, nil
	case models.ModuleActivity:
		return models.ActivityData{
			Name:             getString(data, "name"),
			Kind:             getString(data, "activityType"),
			Location:         getString(data, "location"),
			Address:          getString(data, "address"),
			StartDate:        getTime(data, "startDate"),
			StartTime:        getTime(data, "startTime"),
			EndTime:          getTime(data, "endTime"),
			Duration:         getString(data, "duration"),
			Cost:             getFloatPtr(data, "cost"),
			Notes:            getString(data, "notes"),
			IsBooked:         getBool(data, "isBooked"),
			BookingReference: getString(data, "bookingReference"),
		}, nil
	case models.ModuleCost:
		var breakdown []models.CostItem
		for _, raw := range getSlice(data, "breakdown") {
			itemMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			breakdown = append(breakdown, models.CostItem{
				ID:          getString(itemMap, "id"),
				ModuleID:    getString(itemMap, "moduleId"),
				Description: getString(itemMap, "description"),
				Amount:      getFloat(itemMap, "amount"),
			})
		}
		return models.CostData{
			TotalCost:        getFloat(data, "totalCost"),
			Breakdown:        breakdown,
			IsBooked:         getBool(data, "isBooked"),
			BookingReference: getString(data, "bookingReference"),
		}, nil
	case models.ModulePackingList:
		var items []models.PackingItem
		for _, raw := range getSlice(data, "items") {
			itemMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			category := getString(itemMap, "category")
			if category == "" {
				category = models.DefaultPackingCategory
			}
			items = append(items, models.PackingItem{
				ID:        getString(itemMap, "id"),
				Name:      getString(itemMap, "name"),
				IsChecked: getBool(itemMap, "isChecked"),
				Category:  category,
				Notes:     getString(itemMap, "notes"),
			})
		}
		return models.PackingListData{
			Title: getString(data, "title"),
			Items: items,
			Notes: getString(data, "notes"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModuleType, tag)
	}
}

// Wire timestamps are unix milliseconds.
func encodeTime(t time.Time) int64 {
	return t.UnixMilli()
}

func decodeTime(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case int64:
		return time.UnixMilli(ts), true
	case float64:
		return time.UnixMilli(int64(ts)), true
	case int:
		return time.UnixMilli(int64(ts)), true
	case time.Time:
		return ts, true
	default:
		return time.Time{}, false
	}
}

func optFloat(v *float64) float64 {
	if v == nil {
		return 0.0
	}
	return *v
}

func getString(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func getBool(data map[string]any, key string) bool {
	if b, ok := data[key].(bool); ok {
		return b
	}
	return false
}

func getFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func getFloatPtr(data map[string]any, key string) *float64 {
	switch v := data[key].(type) {
	case float64:
		f := v
		return &f
	case int64:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func getTime(data map[string]any, key string) time.Time {
	if t, ok := decodeTime(data[key]); ok {
		return t
	}
	return time.Now()
}

func getSlice(data map[string]any, key string) []any {
	if s, ok := data[key].([]any); ok {
		return s
	}
	return nil
}

func getInt(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
