package aggregate

import (
	"sort"

	"github.com/buildscan/qto/internal/mapper"
)

// Aggregate merges mapped chunks into one document-level result. Chunks may
// arrive in any completion order; they are re-sorted by chunk index so floor
// and room ordering follows first-seen page order. Merge keys are
// (normalized floor, normalized room) only — a room reappearing on a later
// continuation sheet still merges into its first occurrence.
func Aggregate(mapped []*mapper.MappedChunk, failures []ChunkFailure) *Result {
	chunks := make([]*mapper.MappedChunk, 0, len(mapped))
	for _, mc := range mapped {
		if mc != nil {
			chunks = append(chunks, mc)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })

	m := newMerger()
	dropped := 0
	for _, chunk := range chunks {
		dropped += chunk.DroppedItems
		for _, floor := range chunk.Floors {
			m.addFloor(floor)
		}
	}

	sorted := make([]ChunkFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	result := &Result{
		Floors:          m.floors(),
		Summary:         m.summary(),
		Partial:         len(sorted) > 0,
		Failures:        sorted,
		ChunksTotal:     len(chunks) + len(sorted),
		ChunksSucceeded: len(chunks),
		DroppedItems:    dropped + m.droppedItems(),
	}
	return result
}

// droppedItems counts invariant violations caught at merge time.
func (m *merger) droppedItems() int {
	n := 0
	for _, mf := range m.floorByKey {
		for _, mr := range mf.roomByKey {
			n += mr.dropped
		}
	}
	return n
}

// merger accumulates drafts into order-preserving merged structures.
type merger struct {
	floorOrder []string
	floorByKey map[string]*mergedFloor
}

type mergedFloor struct {
	label     string
	roomOrder []string
	roomByKey map[string]*mergedRoom
}

type mergedRoom struct {
	label     string
	itemOrder []itemKey
	itemByKey map[itemKey]*QuantityItem
	dropped   int
}

type itemKey struct {
	material string
	unit     string
}

func newMerger() *merger {
	return &merger{floorByKey: make(map[string]*mergedFloor)}
}

func (m *merger) addFloor(draft mapper.FloorDraft) {
	key := NormalizeLabel(draft.Label)
	if key == "" {
		key = "unassigned"
	}
	floor, ok := m.floorByKey[key]
	if !ok {
		floor = &mergedFloor{
			label:     displayTitle(draft.Label),
			roomByKey: make(map[string]*mergedRoom),
		}
		m.floorByKey[key] = floor
		m.floorOrder = append(m.floorOrder, key)
	}
	for _, room := range draft.Rooms {
		floor.addRoom(room)
	}
}

func (f *mergedFloor) addRoom(draft mapper.RoomDraft) {
	key := NormalizeLabel(draft.Label)
	if key == "" {
		return
	}
	room, ok := f.roomByKey[key]
	if !ok {
		room = &mergedRoom{
			label:     displayTitle(draft.Label),
			itemByKey: make(map[itemKey]*QuantityItem),
		}
		f.roomByKey[key] = room
		f.roomOrder = append(f.roomOrder, key)
	}
	for _, item := range draft.Items {
		room.addItem(item)
	}
}

func (r *mergedRoom) addItem(item mapper.QuantityItem) {
	// A negative quantity reaching aggregation means mapper validation was
	// bypassed; treat it as a dropped item rather than corrupting totals.
	if item.Quantity.IsNegative() {
		r.dropped++
		return
	}
	key := itemKey{material: NormalizeMaterial(item.Material), unit: item.Unit}
	if key.material == "" {
		r.dropped++
		return
	}
	existing, ok := r.itemByKey[key]
	if !ok {
		merged := QuantityItem{
			Material:   collapseSpaces(item.Material),
			Quantity:   item.Quantity,
			Unit:       item.Unit,
			Confidence: item.Confidence,
		}
		r.itemByKey[key] = &merged
		r.itemOrder = append(r.itemOrder, key)
		return
	}
	existing.Quantity = existing.Quantity.Add(item.Quantity)
	if item.Confidence > existing.Confidence {
		existing.Confidence = item.Confidence
	}
}

func (m *merger) floors() []Floor {
	out := make([]Floor, 0, len(m.floorOrder))
	for _, fk := range m.floorOrder {
		mf := m.floorByKey[fk]
		floor := Floor{Label: mf.label, Rooms: make([]Room, 0, len(mf.roomOrder))}
		for _, rk := range mf.roomOrder {
			mr := mf.roomByKey[rk]
			room := Room{Label: mr.label, Items: make([]QuantityItem, 0, len(mr.itemOrder))}
			for _, ik := range mr.itemOrder {
				room.Items = append(room.Items, *mr.itemByKey[ik])
			}
			floor.Rooms = append(floor.Rooms, room)
		}
		out = append(out, floor)
	}
	return out
}

// summary totals every (material, unit) pair across the merged room set, in
// first-seen order. Totals are exact decimal sums of the merged items, so
// the summary invariant holds by construction.
func (m *merger) summary() []MaterialTotal {
	var order []itemKey
	totals := make(map[itemKey]*MaterialTotal)

	for _, fk := range m.floorOrder {
		mf := m.floorByKey[fk]
		for _, rk := range mf.roomOrder {
			mr := mf.roomByKey[rk]
			for _, ik := range mr.itemOrder {
				item := mr.itemByKey[ik]
				key := itemKey{material: NormalizeMaterial(item.Material), unit: item.Unit}
				total, ok := totals[key]
				if !ok {
					totals[key] = &MaterialTotal{
						Material: item.Material,
						Unit:     item.Unit,
						Total:    item.Quantity,
					}
					order = append(order, key)
					continue
				}
				total.Total = total.Total.Add(item.Quantity)
			}
		}
	}

	out := make([]MaterialTotal, 0, len(order))
	for _, key := range order {
		out = append(out, *totals[key])
	}
	return out
}
