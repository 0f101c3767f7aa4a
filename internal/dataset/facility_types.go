package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

// ErrFacilityTypesNotFound is returned when the facility type lookup has not
// been generated yet. It is produced by the transform step.
var ErrFacilityTypesNotFound = errors.New("facility type lookup not found")

// FacilityTypes maps "type:canonical_name" to the facility type. It is the
// contract the forecast step uses to know which facilities to predict.
type FacilityTypes map[string]string

// BuildFacilityTypes derives the lookup from the distinct facilities of records.
func BuildFacilityTypes(records []domain.Record) FacilityTypes {
	out := make(FacilityTypes)
	for _, r := range records {
		out[r.Facility().String()] = r.FacilityType
	}
	return out
}

// Facilities returns the lookup entries as facility keys. The name is the part
// of the lookup key after the first colon.
func (f FacilityTypes) Facilities() []domain.FacilityKey {
	out := make([]domain.FacilityKey, 0, len(f))
	for key, typ := range f {
		name := key
		if prefix, rest, ok := strings.Cut(key, ":"); ok && prefix == typ {
			name = rest
		}
		out = append(out, domain.FacilityKey{Type: typ, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// SaveFacilityTypes writes the lookup as indented JSON, replacing any
// previous file.
func SaveFacilityTypes(path string, types FacilityTypes) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(types); err != nil {
			return fmt.Errorf("encode facility types: %w", err)
		}
		return nil
	})
}

// LoadFacilityTypes reads the lookup written by SaveFacilityTypes.
func LoadFacilityTypes(path string) (FacilityTypes, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFacilityTypesNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read facility types: %w", err)
	}
	var types FacilityTypes
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("parse facility types: %w", err)
	}
	return types, nil
}
