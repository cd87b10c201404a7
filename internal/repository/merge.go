package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"ridecoord/internal/domain"
)

// ApplyPatch deep-merges patch into a copy of before and returns the
// resulting document. Nested objects are merged key by key so writers
// touching disjoint fields never clobber each other; a nil value removes
// the key and a domain.Replacement overwrites the whole field. The result
// is checked against the ride invariants.
func ApplyPatch(before *domain.Ride, patch domain.RidePatch, now time.Time) (*domain.Ride, error) {
	if len(patch) == 0 {
		return nil, ErrEmptyPatch
	}

	doc, err := toDocument(before)
	if err != nil {
		return nil, err
	}
	merged := make(domain.RidePatch, len(patch))
	replaced := map[string]any{}
	for key, value := range patch {
		if r, ok := value.(domain.Replacement); ok {
			replaced[key] = r.Value
			continue
		}
		merged[key] = value
	}
	normalized, err := toDocument(merged)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	mergeDocuments(doc, normalized)
	if err := replaceFields(doc, replaced); err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var after domain.Ride
	if err := json.Unmarshal(raw, &after); err != nil {
		return nil, fmt.Errorf("decode merged ride: %w", err)
	}

	// Identity and bookkeeping fields are owned by the store.
	after.ID = before.ID
	after.CreatedAt = before.CreatedAt
	after.ArchivedAt = before.ArchivedAt
	after.UpdatedAt = now

	if err := checkInvariants(before, &after); err != nil {
		return nil, err
	}

	if after.Status.IsTerminal() && after.ArchivedAt == nil {
		archivedAt := now
		after.ArchivedAt = &archivedAt
	}

	return &after, nil
}

func checkInvariants(before, after *domain.Ride) error {
	if before.Status != after.Status && !domain.CanTransition(before.Status, after.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, after.Status)
	}
	if authorized := before.AuthorizedCents(); authorized > 0 && after.AuthorizedCents() != authorized {
		return ErrAuthorizedAmountImmutable
	}
	return nil
}

func toDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func mergeDocuments(dst, src map[string]any) {
	for key, value := range src {
		if value == nil {
			delete(dst, key)
			continue
		}
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeDocuments(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

func replaceFields(dst map[string]any, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	normalized, err := toDocument(fields)
	if err != nil {
		return err
	}
	for key, value := range normalized {
		if value == nil {
			delete(dst, key)
			continue
		}
		dst[key] = value
	}
	return nil
}
