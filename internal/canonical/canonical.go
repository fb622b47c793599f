// Package canonical implements the whitelist-based deterministic serializer
// ("Golden Master v2.3.1") that produces the content hash for an inspection.
//
// The serialization rules are frozen: any change to the whitelists, ordering,
// or encoding silently changes every hash and breaks verification of stored
// inspections, so they are treated as a wire format, not application code.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/proveniq/properties-backend/internal/db/models"
)

// Field whitelists (Golden Master v2.3.1). Only these fields ever enter the
// canonical payload; everything else on the records is ignored.
var (
	headerFields = []string{
		"inspection_id",
		"lease_id",
		"type",
		"status",
		"locked_at",
		"device_signed_at",
		"captured_offline",
	}

	itemFields = []string{
		"room_key",
		"item_key",
		"ordinal",
		"condition",
		"notes",
	}

	evidenceFields = []string{
		"object_path",
		"mime_type",
		"confirmed_at",
		"storage_instance_kind",
		"storage_instance_id",
		"evidence_source",
		"file_sha256_verified",
	}
)

// timeLayout renders UTC ISO-8601 at second precision with a literal Z.
// Sub-second precision is deliberately discarded so devices and servers with
// different clock resolutions produce identical hashes.
const timeLayout = "2006-01-02T15:04:05Z"

// Result holds the three artifacts of canonicalization: the structured
// payload, its serialized JSON bytes, and the lowercase hex SHA-256 of those
// bytes.
type Result struct {
	Payload map[string]interface{}
	JSON    []byte
	SHA256  string
}

// Compute builds the canonical payload for an inspection and its items
// (each item carrying its confirmed evidence), serializes it, and hashes it.
func Compute(ins *models.Inspection, items []models.InspectionItem) (*Result, error) {
	payload, err := buildPayload(ins, items)
	if err != nil {
		return nil, err
	}

	raw, err := Serialize(payload)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	return &Result{
		Payload: payload,
		JSON:    raw,
		SHA256:  hex.EncodeToString(sum[:]),
	}, nil
}

// Verify reports whether the canonical JSON bytes match the expected
// lowercase hex SHA-256.
func Verify(canonicalJSON []byte, expectedHash string) bool {
	sum := sha256.Sum256(canonicalJSON)
	return hex.EncodeToString(sum[:]) == expectedHash
}

// Serialize encodes a payload as canonical JSON: keys sorted, no whitespace,
// UTF-8 without HTML escaping.
func Serialize(payload map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to serialize canonical payload: %w", err)
	}
	// json.Encoder appends a newline after the value.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func buildPayload(ins *models.Inspection, items []models.InspectionItem) (map[string]interface{}, error) {
	header, err := extractWhitelist(map[string]interface{}{
		"inspection_id":    ins.ID.String(),
		"lease_id":         uuidPtr(ins.LeaseID),
		"type":             ins.InspectionType,
		"status":           ins.Status,
		"locked_at":        timePtr(ins.LockedAt),
		"device_signed_at": timePtr(ins.DeviceSignedAt),
		"captured_offline": ins.CapturedOffline,
	}, headerFields)
	if err != nil {
		return nil, err
	}

	sorted := make([]models.InspectionItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(a, b int) bool {
		ia, ib := sorted[a], sorted[b]
		if ia.RoomKey != ib.RoomKey {
			return ia.RoomKey < ib.RoomKey
		}
		if ia.Ordinal != ib.Ordinal {
			return ia.Ordinal < ib.Ordinal
		}
		return ia.ItemKey < ib.ItemKey
	})

	itemsList := make([]interface{}, 0, len(sorted))
	for i := range sorted {
		item := &sorted[i]
		itemData, err := extractWhitelist(map[string]interface{}{
			"room_key":  item.RoomKey,
			"item_key":  item.ItemKey,
			"ordinal":   item.Ordinal,
			"condition": item.Condition,
			"notes":     strPtr(item.Notes),
		}, itemFields)
		if err != nil {
			return nil, err
		}

		evs := make([]models.Evidence, len(item.Evidence))
		copy(evs, item.Evidence)
		sort.SliceStable(evs, func(a, b int) bool {
			if !evs[a].ConfirmedAt.Equal(evs[b].ConfirmedAt) {
				return evs[a].ConfirmedAt.Before(evs[b].ConfirmedAt)
			}
			return evs[a].ObjectPath < evs[b].ObjectPath
		})

		evidenceList := make([]interface{}, 0, len(evs))
		for j := range evs {
			ev := &evs[j]
			evData, err := extractWhitelist(map[string]interface{}{
				"object_path":           ev.ObjectPath,
				"mime_type":             ev.MimeType,
				"confirmed_at":          ev.ConfirmedAt,
				"storage_instance_kind": strPtr(ev.StorageInstanceKind),
				"storage_instance_id":   strPtr(ev.StorageInstanceID),
				"evidence_source":       ev.EvidenceSource,
				"file_sha256_verified":  strPtr(ev.FileSHA256Verified),
			}, evidenceFields)
			if err != nil {
				return nil, err
			}
			evidenceList = append(evidenceList, evData)
		}

		itemsList = append(itemsList, map[string]interface{}{
			"item":     itemData,
			"evidence": evidenceList,
		})
	}

	return map[string]interface{}{
		"header": header,
		"items":  itemsList,
	}, nil
}

// extractWhitelist keeps only whitelisted fields, applying the normalization
// rules: nulls and empty strings are stripped, timestamps rendered as UTC
// second-precision, floats rejected outright.
func extractWhitelist(data map[string]interface{}, whitelist []string) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(whitelist))
	for _, field := range whitelist {
		value, ok := data[field]
		if !ok {
			continue
		}
		normalized, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		if normalized != nil {
			result[field] = normalized
		}
	}
	return result, nil
}

func normalizeValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return v, nil
	case bool:
		return v, nil
	case int:
		return v, nil
	case int64:
		return v, nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed in canonical JSON")
	case time.Time:
		return v.UTC().Format(timeLayout), nil
	default:
		return v, nil
	}
}

// uuidPtr, timePtr and strPtr flatten nillable pointers into plain values so
// normalizeValue sees untyped nil instead of a typed nil pointer.

func uuidPtr(u *uuid.UUID) interface{} {
	if u == nil {
		return nil
	}
	return u.String()
}

func timePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func strPtr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
