package mapper

import (
	"strings"

	"github.com/shopspring/decimal"
)

// rawChunk mirrors the JSON shape the extraction service is asked to
// produce. Quantities arrive as strings so the model cannot smuggle float
// artifacts into the result.
type rawChunk struct {
	Floors []rawFloor `json:"floors"`
}

type rawFloor struct {
	Label string    `json:"label"`
	Rooms []rawRoom `json:"rooms"`
}

type rawRoom struct {
	Label string    `json:"label"`
	Items []rawItem `json:"items"`
}

type rawItem struct {
	Material   string  `json:"material"`
	Quantity   string  `json:"quantity"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// validate converts the raw extraction into a MappedChunk, dropping items
// whose quantity is missing, unparsable or negative. Rooms and floors left
// empty after dropping are kept: a room with no usable quantities is still a
// located room.
func validate(rec rawChunk, chunkIndex, startPage, endPage int) *MappedChunk {
	out := &MappedChunk{
		ChunkIndex: chunkIndex,
		StartPage:  startPage,
		EndPage:    endPage,
	}

	for _, f := range rec.Floors {
		floor := FloorDraft{Label: strings.TrimSpace(f.Label)}
		if floor.Label == "" {
			floor.Label = "Unassigned"
		}
		for _, r := range f.Rooms {
			room := RoomDraft{Label: strings.TrimSpace(r.Label)}
			if room.Label == "" {
				continue
			}
			for _, item := range r.Items {
				qi, ok := validateItem(item)
				if !ok {
					out.DroppedItems++
					continue
				}
				room.Items = append(room.Items, qi)
			}
			floor.Rooms = append(floor.Rooms, room)
		}
		if len(floor.Rooms) > 0 {
			out.Floors = append(out.Floors, floor)
		}
	}
	return out
}

func validateItem(item rawItem) (QuantityItem, bool) {
	material := strings.TrimSpace(item.Material)
	if material == "" {
		return QuantityItem{}, false
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(item.Quantity))
	if err != nil || qty.IsNegative() {
		return QuantityItem{}, false
	}
	conf := item.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return QuantityItem{
		Material:   material,
		Quantity:   qty,
		Unit:       strings.TrimSpace(item.Unit),
		Confidence: conf,
	}, true
}
