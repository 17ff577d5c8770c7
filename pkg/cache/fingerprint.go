package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ieu-analytics/event2table/pkg/models"
)

// Namespace is the key prefix shared by every cache entry of this system.
const Namespace = "hql:"

// Prefixes per data class. Artifact keys live directly under the namespace.
const (
	StaticPrefix  = Namespace + "static:"
	DynamicPrefix = Namespace + "dynamic:"
)

// Fingerprint derives the cache key of a generation request: events sorted by
// (gid, event_id), the whole envelope re-encoded with sorted keys, SHA-256
// over the canonical bytes. MD5 is deliberately not used.
//
// Per-event field lists bind to events by position, so they are permuted
// together with the events they describe. Join specs also bind by position
// but cannot be permuted meaningfully, so event order is preserved for join
// requests.
func Fingerprint(req models.GenerateRequest) (string, error) {
	canonical, err := canonicalJSON(normalize(req))
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize request: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return Namespace + hex.EncodeToString(sum[:]), nil
}

// normalize returns a copy of the request with events (and their positional
// companions) in canonical order. The input is never mutated.
func normalize(req models.GenerateRequest) models.GenerateRequest {
	if len(req.Options.Joins) > 0 {
		return req
	}

	order := make([]int, len(req.Events))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := req.Events[order[i]], req.Events[order[j]]
		if a.GID != b.GID {
			return a.GID < b.GID
		}
		return a.EventID < b.EventID
	})

	normalized := req
	normalized.Events = make([]models.EventRef, len(req.Events))
	for i, from := range order {
		normalized.Events[i] = req.Events[from]
	}
	if len(req.EventFields) == len(req.Events) {
		normalized.EventFields = make([][]models.FieldDescriptor, len(req.EventFields))
		for i, from := range order {
			normalized.EventFields[i] = req.EventFields[from]
		}
	}
	return normalized
}

// Dependencies extracts the catalog entities a request touches, declared as
// data so invalidation never has to inspect call sites.
func Dependencies(req models.GenerateRequest) Deps {
	deps := Deps{}
	seenGID := map[int64]bool{}
	seenEvent := map[int64]bool{}
	for _, e := range req.Events {
		if !seenGID[e.GID] {
			seenGID[e.GID] = true
			deps.GIDs = append(deps.GIDs, e.GID)
		}
		if !seenEvent[e.EventID] {
			seenEvent[e.EventID] = true
			deps.EventIDs = append(deps.EventIDs, e.EventID)
		}
	}
	return deps
}

// canonicalJSON round-trips a value through a generic decode so that object
// keys come out sorted regardless of struct field order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
