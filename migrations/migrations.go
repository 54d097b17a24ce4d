// Package migrations embeds the SQL schema of the registries.
package migrations

import (
	"embed"
	"fmt"
)

//go:embed *.sql
var files embed.FS

// Directions accepted by Load.
const (
	Up   = "up"
	Down = "down"
)

// Name returns the file name of the schema migration for direction.
func Name(direction string) string {
	return fmt.Sprintf("001_create_schema.%s.sql", direction)
}

// Load returns the SQL of the schema migration for direction.
func Load(direction string) (string, error) {
	if direction != Up && direction != Down {
		return "", fmt.Errorf("unknown migration direction %q", direction)
	}
	content, err := files.ReadFile(Name(direction))
	if err != nil {
		return "", err
	}
	return string(content), nil
}
