// Package messages
package messages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Table maps command names to their codes. Codes differ per firmware build;
// tables are extracted from the firmware image and loaded at startup.
type Table struct {
	byName map[string]uint32
	byCode map[uint32]string
}

func NewTable(commands map[string]uint32) *Table {
	t := &Table{
		byName: make(map[string]uint32, len(commands)),
		byCode: make(map[uint32]string, len(commands)),
	}
	for name, code := range commands {
		t.byName[name] = code
		t.byCode[code] = name
	}
	return t
}

// LoadTable reads a command table from a .json or .toml file mapping names
// to codes.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	commands := map[string]uint32{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &commands); err != nil {
			return nil, fmt.Errorf("messages: table %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &commands); err != nil {
			return nil, fmt.Errorf("messages: table %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("messages: table %s: unsupported format", path)
	}
	if len(commands) == 0 {
		return nil, fmt.Errorf("messages: table %s: no commands", path)
	}
	return NewTable(commands), nil
}

func (t *Table) Code(name string) (uint32, bool) {
	code, ok := t.byName[name]
	return code, ok
}

// Name resolves a code for log fields, empty when unknown.
func (t *Table) Name(code uint32) string {
	return t.byCode[code]
}

func (t *Table) Len() int {
	return len(t.byName)
}
