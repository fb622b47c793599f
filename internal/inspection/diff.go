// Package inspection - diff.go produces the condition diff between a lease's
// signed move-in and move-out inspections. Read only; both inspections are
// locked, so the report is stable.
package inspection

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/auth"
	"github.com/proveniq/properties-backend/internal/db/models"
)

// DiffEntry compares one checklist position across the two inspections. A nil
// condition means the item was absent from that inspection.
type DiffEntry struct {
	RoomKey          string  `json:"room_key"`
	ItemKey          string  `json:"item_key"`
	Ordinal          int     `json:"ordinal"`
	MoveInCondition  *string `json:"move_in_condition,omitempty"`
	MoveOutCondition *string `json:"move_out_condition,omitempty"`
	Changed          bool    `json:"changed"`
	NewDamage        bool    `json:"new_damage"`
}

// DiffReport is the move-in vs. move-out comparison for a lease.
type DiffReport struct {
	LeaseID          uuid.UUID   `json:"lease_id"`
	MoveInID         uuid.UUID   `json:"move_in_inspection_id"`
	MoveOutID        uuid.UUID   `json:"move_out_inspection_id"`
	MoveInHash       string      `json:"move_in_content_hash"`
	MoveOutHash      string      `json:"move_out_content_hash"`
	Entries          []DiffEntry `json:"entries"`
	NewDamageCount   int         `json:"new_damage_count"`
	ChangedItemCount int         `json:"changed_item_count"`
}

type diffKey struct {
	roomKey string
	itemKey string
	ordinal int
}

// Diff compares the lease's most recent signed move-in inspection against its
// most recent signed move-out inspection.
func (s *Service) Diff(ctx context.Context, actor auth.Actor, leaseID uuid.UUID) (*DiffReport, error) {
	lease, err := s.access.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, ErrNotFound
	}
	ok, err := s.leaseAuthorized(ctx, actor, lease)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	moveIn, err := s.inspections.GetSignedByType(ctx, leaseID, models.InspectionTypeMoveIn)
	if err != nil {
		return nil, err
	}
	if moveIn == nil {
		return nil, fmt.Errorf("%w: lease has no signed move_in inspection", ErrNotFound)
	}
	moveOut, err := s.inspections.GetSignedByType(ctx, leaseID, models.InspectionTypeMoveOut)
	if err != nil {
		return nil, err
	}
	if moveOut == nil {
		return nil, fmt.Errorf("%w: lease has no signed move_out inspection", ErrNotFound)
	}

	inItems, err := s.inspections.ListItems(ctx, moveIn.ID)
	if err != nil {
		return nil, err
	}
	outItems, err := s.inspections.ListItems(ctx, moveOut.ID)
	if err != nil {
		return nil, err
	}

	report := &DiffReport{
		LeaseID:   leaseID,
		MoveInID:  moveIn.ID,
		MoveOutID: moveOut.ID,
	}
	if moveIn.ContentHash != nil {
		report.MoveInHash = *moveIn.ContentHash
	}
	if moveOut.ContentHash != nil {
		report.MoveOutHash = *moveOut.ContentHash
	}

	byKey := make(map[diffKey]*DiffEntry)
	for _, item := range inItems {
		cond := item.Condition
		byKey[diffKey{item.RoomKey, item.ItemKey, item.Ordinal}] = &DiffEntry{
			RoomKey:         item.RoomKey,
			ItemKey:         item.ItemKey,
			Ordinal:         item.Ordinal,
			MoveInCondition: &cond,
		}
	}
	for _, item := range outItems {
		cond := item.Condition
		key := diffKey{item.RoomKey, item.ItemKey, item.Ordinal}
		entry, exists := byKey[key]
		if !exists {
			entry = &DiffEntry{RoomKey: item.RoomKey, ItemKey: item.ItemKey, Ordinal: item.Ordinal}
			byKey[key] = entry
		}
		entry.MoveOutCondition = &cond
	}

	for _, entry := range byKey {
		entry.Changed = conditionChanged(entry.MoveInCondition, entry.MoveOutCondition)
		entry.NewDamage = newDamage(entry.MoveInCondition, entry.MoveOutCondition)
		if entry.Changed {
			report.ChangedItemCount++
		}
		if entry.NewDamage {
			report.NewDamageCount++
		}
		report.Entries = append(report.Entries, *entry)
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.RoomKey != b.RoomKey {
			return a.RoomKey < b.RoomKey
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.ItemKey < b.ItemKey
	})
	return report, nil
}

func conditionChanged(moveIn, moveOut *string) bool {
	if moveIn == nil || moveOut == nil {
		return true
	}
	return *moveIn != *moveOut
}

// newDamage flags items that left the lease in worse shape than they entered
// it: damaged at move-out without having been damaged at move-in.
func newDamage(moveIn, moveOut *string) bool {
	if moveOut == nil || *moveOut != models.ConditionDamaged {
		return false
	}
	return moveIn == nil || *moveIn != models.ConditionDamaged
}
