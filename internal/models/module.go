package models

import (
	"fmt"
	"time"
)

// ModuleType is the discriminant tag of a module payload.
type ModuleType string

const (
	ModuleFlight         ModuleType = "flight"
	ModuleHotel          ModuleType = "hotel"
	ModuleTransportation ModuleType = "transportation"
	ModuleRestaurant     ModuleType = "restaurant"
	ModuleActivity       ModuleType = "activity"
	ModuleCost           ModuleType = "cost"
	ModulePackingList    ModuleType = "packingList"
)

// AllModuleTypes lists every supported tag in display order.
var AllModuleTypes = []ModuleType{
	ModuleFlight,
	ModuleHotel,
	ModuleTransportation,
	ModuleRestaurant,
	ModuleActivity,
	ModuleCost,
	ModulePackingList,
}

// ParseModuleType validates a raw tag.
func ParseModuleType(raw string) (ModuleType, error) {
	for _, t := range AllModuleTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown module type: %q", raw)
}

func (t ModuleType) DisplayName() string {
	switch t {
	case ModuleFlight:
		return "Flight"
	case ModuleHotel:
		return "Hotel"
	case ModuleTransportation:
		return "Transportation"
	case ModuleRestaurant:
		return "Restaurant"
	case ModuleActivity:
		return "Activity"
	case ModuleCost:
		return "Cost"
	case ModulePackingList:
		return "Packing List"
	default:
		return string(t)
	}
}

// ModuleData is the closed set of module payload variants. The Type of the
// payload must always match the envelope's Type tag.
type ModuleData interface {
	ModuleType() ModuleType
}

type FlightData struct {
	FlightNumber     string
	DepartureDate    time.Time
	DepartureTime    time.Time
	DepartureAirport string
	ArrivalAirport   string
	Cost             *float64
	Notes            string
	IsBooked         bool
	BookingReference string
}

func (FlightData) ModuleType() ModuleType { return ModuleFlight }

type HotelData struct {
	HotelName        string
	CheckInDate      time.Time
	CheckOutDate     time.Time
	RoomType         string
	Address          string
	Cost             *float64
	Notes            string
	IsBooked         bool
	BookingReference string
}

func (HotelData) ModuleType() ModuleType { return ModuleHotel }

type TransportationData struct {
	Kind              string // car, bus, bike, metro or free text
	Destination       string
	DepartureLocation string
	Duration          string
	DepartureTime     time.Time
	ArrivalTime       time.Time
	StartDate         time.Time
	Cost              *float64
	Notes             string
	IsBooked          bool
	BookingReference  string
}

func (TransportationData) ModuleType() ModuleType { return ModuleTransportation }

type RestaurantData struct {
	Name            string
	Time            time.Time
	StartDate       time.Time
	HasReservation  bool
	ReservationName string
	Cuisine         string
	Rating          *float64
	Cost            *float64
	Notes           string
}

func (RestaurantData) ModuleType() ModuleType { return ModuleRestaurant }

type ActivityData struct {
	Name             string
	Kind             string // sightseeing, adventure, cultural, shopping, ...
	Location         string
	Address          string
	StartDate        time.Time
	StartTime        time.Time
	EndTime          time.Time
	Duration         string
	Cost             *float64
	Notes            string
	IsBooked         bool
	BookingReference string
}

func (ActivityData) ModuleType() ModuleType { return ModuleActivity }

type CostData struct {
	TotalCost        float64
	Breakdown        []CostItem
	IsBooked         bool
	BookingReference string
}

func (CostData) ModuleType() ModuleType { return ModuleCost }

type CostItem struct {
	ID          string  `json:"id"`
	ModuleID    string  `json:"module_id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type PackingListData struct {
	Title string
	Items []PackingItem
	Notes string
}

func (PackingListData) ModuleType() ModuleType { return ModulePackingList }

type PackingItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsChecked bool   `json:"is_checked"`
	Category  string `json:"category"` // clothing, electronics, documents, ...
	Notes     string `json:"notes"`
}

// Module is the envelope around a typed payload inside a trip.
type Module struct {
	ID          string
	Type        ModuleType
	Data        ModuleData
	Position    int
	IsCompleted bool
	LockedBy    string // empty when unlocked
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Float pointer helper for optional numeric fields.
func Float(v float64) *float64 { return &v }
