package domain

import (
	"encoding/json"
	"fmt"
)

// AliasMap folds renamed facilities onto a canonical name. Keys have the form
// "type:raw_name". The zero value is an empty map that resolves every name to
// itself. An AliasMap is never modified after construction.
type AliasMap struct {
	aliases map[string]string
}

// NewAliasMap copies m into a new AliasMap.
func NewAliasMap(m map[string]string) AliasMap {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return AliasMap{aliases: cp}
}

// ParseAliasMap decodes the flat JSON alias config.
func ParseAliasMap(data []byte) (AliasMap, error) {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return AliasMap{}, fmt.Errorf("parse alias map: %w", err)
	}
	return NewAliasMap(m), nil
}

// Resolve returns the canonical name for a raw facility name of the given
// type, or rawName itself when no alias exists.
func (a AliasMap) Resolve(rawName, facilityType string) string {
	if canonical, ok := a.aliases[facilityType+":"+rawName]; ok {
		return canonical
	}
	return rawName
}

// Len reports the number of aliases.
func (a AliasMap) Len() int {
	return len(a.aliases)
}
