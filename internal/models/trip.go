package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Trip is the aggregate root: metadata, participants and the ordered module
// list. Version is a server-side monotonic counter bumped on every successful
// write; clients discard snapshots whose version is not newer than the one
// they already hold.
type Trip struct {
	ID           string
	Title        string
	Description  string
	StartDate    time.Time
	EndDate      time.Time
	CreatedBy    string
	Participants []string
	Modules      []Module
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

// NewTrip builds a trip owned by createdBy with the owner as sole participant.
func NewTrip(title, description string, startDate, endDate time.Time, createdBy string) *Trip {
	now := time.Now()
	return &Trip{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		StartDate:    startDate,
		EndDate:      endDate,
		CreatedBy:    createdBy,
		Participants: []string{createdBy},
		Modules:      []Module{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasParticipant reports whether userID is the owner or a participant.
func (t *Trip) HasParticipant(userID string) bool {
	if t.CreatedBy == userID {
		return true
	}
	for _, p := range t.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ModuleByID returns the index of the module, or -1.
func (t *Trip) ModuleByID(moduleID string) int {
	for i := range t.Modules {
		if t.Modules[i].ID == moduleID {
			return i
		}
	}
	return -1
}

// SortModulesForDisplay orders modules by ascending position, with every
// cost module pinned after every non-cost module regardless of position.
func SortModulesForDisplay(modules []Module) []Module {
	sorted := append([]Module(nil), modules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		iCost := sorted[i].Type == ModuleCost
		jCost := sorted[j].Type == ModuleCost
		if iCost != jCost {
			return !iCost
		}
		return sorted[i].Position < sorted[j].Position
	})
	return sorted
}
