package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/couchcryptid/occupancy-etl/internal/domain"
)

// ErrAliasesNotFound is returned when the facility alias config is missing.
var ErrAliasesNotFound = errors.New("facility aliases not found")

// LoadAliases reads the facility alias config at path.
func LoadAliases(path string) (domain.AliasMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.AliasMap{}, fmt.Errorf("%w: %s", ErrAliasesNotFound, path)
	}
	if err != nil {
		return domain.AliasMap{}, fmt.Errorf("read aliases: %w", err)
	}
	aliases, err := domain.ParseAliasMap(data)
	if err != nil {
		return domain.AliasMap{}, fmt.Errorf("load aliases %s: %w", path, err)
	}
	return aliases, nil
}
