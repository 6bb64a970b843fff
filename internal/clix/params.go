package clix

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"

	"structurizer/internal/config"
)

// ParseList reads a comma-separated flag, trimming space and dropping empty items.
func ParseList(flags *pflag.FlagSet, name string) ([]string, error) {
	raw, err := flags.GetString(name)
	if err != nil {
		return nil, err
	}
	var items []string
	if raw != "" {
		// Trim space and filter out empty strings in one pass
		for _, t := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(t)
			if trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items, nil
}

// ParseSchema resolves the target schema from --schema, then --schema-file, then the
// configured default schema file.
func ParseSchema(flags *pflag.FlagSet, defaultPath string) (string, error) {
	schema, _ := flags.GetString("schema")
	schemaFile, _ := flags.GetString("schema-file")
	if schema != "" && schemaFile != "" {
		return "", errors.New("use either --schema or --schema-file, not both")
	}
	if schema != "" {
		return schema, nil
	}
	if schemaFile == "" {
		schemaFile = defaultPath
	}
	if schemaFile == "" {
		return "", errors.New("a target schema is required: pass --schema or --schema-file")
	}
	return config.LoadSchemaContent(schemaFile)
}
