package repository

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// CatalogSource yields the parsed lender database. The catalog is read once
// at startup; a failure here is fatal for the process.
type CatalogSource interface {
	Load(ctx context.Context) (map[string]any, error)
}

type FileCatalogSource struct {
	Path string
}

func NewFileCatalogSource(path string) *FileCatalogSource {
	return &FileCatalogSource{Path: path}
}

func (s *FileCatalogSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", s.Path)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", s.Path)
	}
	return raw, nil
}

// StaticCatalogSource serves an already-parsed database.
type StaticCatalogSource map[string]any

func (s StaticCatalogSource) Load(context.Context) (map[string]any, error) {
	return s, nil
}
