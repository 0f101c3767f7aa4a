// Package domain models facility occupancy snapshots and the features derived
// from them.
//
// # Data Source
//
// A scraper fetches the occupancy page of every public pool, sauna and ice
// rink roughly every 15 minutes and writes one JSON file per fetch named
// pool_data_YYYYMMDD_HHMMSS.json. Weather and holiday files are produced by
// separate fetchers and are consumed here as fixed file formats.
//
// # Snapshot Conventions
//
// Snapshot layout:
//
//	{
//	  "scrape_timestamp": "2026-01-17T10:00:00+01:00",
//	  "pools":  [{"pool_name": "Nordbad", "facility_type": "pool", ...}],
//	  "saunas": [{"pool_name": "Nordbad Sauna", "facility_type": "sauna", ...}]
//	}
//
// The collection keys are not fixed. Any top-level array whose first element
// carries a "facility_type" field is a facility collection, which lets the
// scraper add new categories without a change here. Other keys are reported
// as ignored by [ParseSnapshot].
//
// Occupancy text:
//
//	"<used>/<capacity> person(s)"  →  e.g. "57/311 persons"
//	The capacity is the second integer. Anything else is unparseable, which is
//	not an error. Extracted by [ParseCapacity].
//
// # Facility Identity
//
// A facility is identified by (type, name). The same name may exist as both a
// pool and a sauna ("Cosimawellenbad"), so every lookup, dedup key and issue
// label carries the type as well. Renamed facilities are folded onto one
// canonical name by an [AliasMap] keyed "type:raw_name".
//
// # Time
//
// All instants are timezone-aware. Calendar features (hour, weekday, month,
// holidays) are computed in one configured location, usually Europe/Berlin.
// Weather is joined on the hour-floor of the observation in that location.
package domain
