package reference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// SDE export file names. Each file holds one JSON object per line.
const (
	sdeTypesFile   = "types.jsonl"
	sdeRegionsFile = "regions.jsonl"
)

type sdeTypeRow struct {
	TypeID int32             `json:"_key"`
	Name   map[string]string `json:"name"`
}

type sdeRegionRow struct {
	RegionID int32             `json:"_key"`
	Name     map[string]string `json:"name"`
}

// LoadSDE seeds the reference store from static data export files in
// dir. Missing files are skipped; a partial SDE still seeds what it
// has, with the remainder resolved lazily through ESI.
func LoadSDE(ctx context.Context, dir string, store storage.ReferenceStore) error {
	loaded, err := loadSDETypes(ctx, filepath.Join(dir, sdeTypesFile), store)
	if err != nil {
		return err
	}
	if loaded > 0 {
		logger.Info("seeded %d item names from SDE", loaded)
	}

	loaded, err = loadSDERegions(ctx, filepath.Join(dir, sdeRegionsFile), store)
	if err != nil {
		return err
	}
	if loaded > 0 {
		logger.Info("seeded %d regions from SDE", loaded)
	}
	return nil
}

func loadSDETypes(ctx context.Context, path string, store storage.ReferenceStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open sde types: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row sdeTypeRow
		if err := json.Unmarshal(line, &row); err != nil {
			logger.Warn("skipping malformed sde type row: %v", err)
			continue
		}
		if row.TypeID == 0 {
			continue
		}
		item := &domain.Item{TypeID: row.TypeID}
		if name, ok := row.Name["en"]; ok && name != "" {
			item.Name = &name
		}
		if err := store.UpsertItem(ctx, item); err != nil {
			return loaded, fmt.Errorf("seed item %d: %w", row.TypeID, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("scan sde types: %w", err)
	}
	return loaded, nil
}

func loadSDERegions(ctx context.Context, path string, store storage.ReferenceStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open sde regions: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row sdeRegionRow
		if err := json.Unmarshal(line, &row); err != nil {
			logger.Warn("skipping malformed sde region row: %v", err)
			continue
		}
		name := row.Name["en"]
		if row.RegionID == 0 || name == "" {
			continue
		}
		if err := store.UpsertRegion(ctx, &domain.Region{RegionID: row.RegionID, Name: name}); err != nil {
			return loaded, fmt.Errorf("seed region %d: %w", row.RegionID, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("scan sde regions: %w", err)
	}
	return loaded, nil
}
