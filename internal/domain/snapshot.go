package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingScrapeTimestamp is returned when a snapshot has no usable
// scrape_timestamp. Such files cannot be placed against the incremental cutoff.
var ErrMissingScrapeTimestamp = errors.New("missing scrape_timestamp")

const scrapeTimestampKey = "scrape_timestamp"

// FacilityRecord is the declared shape of one element of a facility collection.
type FacilityRecord struct {
	Name             string    `json:"pool_name"`
	Type             string    `json:"facility_type"`
	RawOccupancy     string    `json:"raw_occupancy"`
	Timestamp        time.Time `json:"timestamp"`
	OccupancyPercent *float64  `json:"occupancy_percent"`
	IsOpen           *bool     `json:"is_open"`
}

// Key returns the raw facility key of the record.
func (r FacilityRecord) Key() FacilityKey {
	return FacilityKey{Type: r.Type, Name: r.Name}
}

// Capacity parses the capacity out of the record's occupancy text.
func (r FacilityRecord) Capacity() (int, bool) {
	return ParseCapacity(r.RawOccupancy)
}

// Observation converts the record into an Observation. It reports false when
// the record carries no numeric occupancy, which the dataset cannot store.
func (r FacilityRecord) Observation() (Observation, bool) {
	if r.OccupancyPercent == nil {
		return Observation{}, false
	}
	obs := Observation{
		Timestamp:        r.Timestamp,
		FacilityName:     r.Name,
		FacilityType:     r.Type,
		RawOccupancy:     r.RawOccupancy,
		OccupancyPercent: *r.OccupancyPercent,
		IsOpen:           OpenStateOf(r.IsOpen),
	}
	obs.capacity, obs.hasCapacity = r.Capacity()
	return obs, true
}

// Collection is one top-level facility list of a snapshot, e.g. "pools".
type Collection struct {
	Key        string
	Facilities []FacilityRecord
}

// Snapshot is one decoded scrape.
type Snapshot struct {
	ScrapedAt   time.Time
	Collections []Collection
	IgnoredKeys []string // top-level keys that are not facility collections
}

// Facilities returns every facility record of the snapshot in document order.
func (s Snapshot) Facilities() []FacilityRecord {
	var out []FacilityRecord
	for _, c := range s.Collections {
		out = append(out, c.Facilities...)
	}
	return out
}

// Observations converts all facility records into observations. The second
// return value counts records dropped for lacking a numeric occupancy.
func (s Snapshot) Observations() ([]Observation, int) {
	var (
		out     []Observation
		dropped int
	)
	for _, rec := range s.Facilities() {
		obs, ok := rec.Observation()
		if !ok {
			dropped++
			continue
		}
		out = append(out, obs)
	}
	return out, dropped
}

// ParseSnapshot decodes a raw snapshot document.
//
// Every top-level key other than scrape_timestamp is classified either as a
// facility collection (a non-empty array whose first element is an object
// with a facility_type field) or as an ignored key. Elements of a collection
// must all decode into a valid [FacilityRecord]; a single bad element makes
// the whole document invalid.
func ParseSnapshot(data []byte) (Snapshot, error) {
	keys, values, err := decodeObject(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}

	var snap Snapshot
	var haveTimestamp bool
	for i, key := range keys {
		if key == scrapeTimestampKey {
			ts, err := parseScrapeTimestamp(values[i])
			if err != nil {
				return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
			}
			snap.ScrapedAt = ts
			haveTimestamp = true
			continue
		}

		if !looksLikeCollection(values[i]) {
			snap.IgnoredKeys = append(snap.IgnoredKeys, key)
			continue
		}
		facilities, err := decodeCollection(key, values[i])
		if err != nil {
			return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
		}
		snap.Collections = append(snap.Collections, Collection{Key: key, Facilities: facilities})
	}

	if !haveTimestamp {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", ErrMissingScrapeTimestamp)
	}
	return snap, nil
}

// decodeObject decodes a JSON object keeping its keys in document order.
func decodeObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("document is not a JSON object")
	}

	var (
		keys   []string
		values []json.RawMessage
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func parseScrapeTimestamp(raw json.RawMessage) (time.Time, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil || *s == "" {
		return time.Time{}, ErrMissingScrapeTimestamp
	}
	ts, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMissingScrapeTimestamp, err)
	}
	return ts, nil
}

// looksLikeCollection applies the collection tag test: a non-empty array whose
// first element is an object carrying facility_type.
func looksLikeCollection(raw json.RawMessage) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return false
	}
	var first map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &first); err != nil {
		return false
	}
	_, ok := first["facility_type"]
	return ok
}

func decodeCollection(key string, raw json.RawMessage) ([]FacilityRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("collection %q: %w", key, err)
	}
	out := make([]FacilityRecord, 0, len(items))
	for i, item := range items {
		var rec FacilityRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("collection %q item %d: %w", key, i, err)
		}
		if rec.Name == "" || rec.Type == "" {
			return nil, fmt.Errorf("collection %q item %d: pool_name and facility_type are required", key, i)
		}
		if rec.Timestamp.IsZero() {
			return nil, fmt.Errorf("collection %q item %d: timestamp is required", key, i)
		}
		out = append(out, rec)
	}
	return out, nil
}
