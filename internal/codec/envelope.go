package codec

import (
	"errors"
	"fmt"
	"time"

	"tripline/internal/models"
)

// ErrBadModuleEnvelope signals a module record missing its required envelope
// fields (id, type, position). The record is dropped, not the whole trip.
var ErrBadModuleEnvelope = errors.New("malformed module envelope")

// EncodeModule wraps a payload with its envelope fields.
func EncodeModule(m models.Module) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"type":        string(m.Type),
		"data":        EncodeModuleData(m.Data),
		"lockedBy":    m.LockedBy,
		"position":    m.Position,
		"isCompleted": m.IsCompleted,
		"createdAt":   encodeTime(m.CreatedAt),
		"updatedAt":   encodeTime(m.UpdatedAt),
	}
}

// DecodeModule rebuilds a module from its wire map. The envelope requires
// id, type and position; the payload then decodes under the envelope's tag,
// which keeps tag and variant matched by construction.
func DecodeModule(raw map[string]any) (models.Module, error) {
	id := getString(raw, "id")
	typeRaw, hasType := raw["type"].(string)
	_, hasPosition := raw["position"]
	if id == "" || !hasType || !hasPosition {
		return models.Module{}, ErrBadModuleEnvelope
	}

	tag, err := models.ParseModuleType(typeRaw)
	if err != nil {
		return models.Module{}, fmt.Errorf("%w: %q", ErrUnknownModuleType, typeRaw)
	}

	dataMap, _ := raw["data"].(map[string]any)
	if dataMap == nil {
		dataMap = map[string]any{}
	}
	data, err := DecodeModuleData(dataMap, tag)
	if err != nil {
		return models.Module{}, err
	}

	return models.Module{
		ID:          id,
		Type:        tag,
		Data:        data,
		Position:    getInt(raw, "position"),
		IsCompleted: getBool(raw, "isCompleted"),
		LockedBy:    getString(raw, "lockedBy"),
		CreatedAt:   getTime(raw, "createdAt"),
		UpdatedAt:   getTime(raw, "updatedAt"),
	}, nil
}

// DecodeModules decodes a list of wire maps, failing on the first bad
// record. Use DecodeTrip for the lenient drop-bad-modules behavior.
func DecodeModules(raws []map[string]any) ([]models.Module, error) {
	modules := make([]models.Module, 0, len(raws))
	for _, raw := range raws {
		m, err := DecodeModule(raw)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// EncodeTrip produces the full trip document.
func EncodeTrip(t *models.Trip) map[string]any {
	modules := make([]any, 0, len(t.Modules))
	for _, m := range t.Modules {
		modules = append(modules, EncodeModule(m))
	}
	return map[string]any{
		"id":           t.ID,
		"title":        t.Title,
		"description":  t.Description,
		"startDate":    encodeTime(t.StartDate),
		"endDate":      encodeTime(t.EndDate),
		"createdBy":    t.CreatedBy,
		"participants": stringsToAny(t.Participants),
		"modules":      modules,
		"createdAt":    encodeTime(t.CreatedAt),
		"updatedAt":    encodeTime(t.UpdatedAt),
		"version":      t.Version,
	}
}

// DecodeTrip rebuilds a trip with total per-field defaulting. Modules that
// fail their own decode are dropped; the trip itself always decodes.
func DecodeTrip(raw map[string]any) *models.Trip {
	trip := &models.Trip{
		ID:           getString(raw, "id"),
		Title:        getString(raw, "title"),
		Description:  getString(raw, "description"),
		StartDate:    getTime(raw, "startDate"),
		EndDate:      getTime(raw, "endDate"),
		CreatedBy:    getString(raw, "createdBy"),
		Participants: anyToStrings(getSlice(raw, "participants")),
		Modules:      []models.Module{},
		CreatedAt:    getTime(raw, "createdAt"),
		UpdatedAt:    getTime(raw, "updatedAt"),
		Version:      int64(getFloat(raw, "version")),
	}

	for _, rawModule := range getSlice(raw, "modules") {
		moduleMap, ok := rawModule.(map[string]any)
		if !ok {
			continue
		}
		module, err := DecodeModule(moduleMap)
		if err != nil {
			continue
		}
		trip.Modules = append(trip.Modules, module)
	}

	return trip
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func anyToStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeTime truncates to wire precision (milliseconds). Useful when
// comparing values that went through a wire round trip.
func NormalizeTime(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
