// Package loot loads loot tier tables from CSV files.
//
// Operators tune loot tiers without a rebuild by pointing the tracker at a
// CSV file with a header row and name,min_level,max_level records. The
// parsed tiers slot into the reward configuration as-is.
package loot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/louisbranch/rollcall/internal/tracker/domain"
)

// ErrNoTiers indicates a tier file with a header but no records.
var ErrNoTiers = errors.New("loot tier file contains no tiers")

// LoadFile reads loot tiers from the CSV file at path.
func LoadFile(path string) ([]domain.LootTier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open loot tier file: %w", err)
	}
	defer f.Close()

	tiers, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tiers, nil
}

// Parse reads loot tiers from CSV data. The first record is a header and is
// skipped. Each following record is name,min_level,max_level with inclusive
// level bounds.
func Parse(r io.Reader) ([]domain.LootTier, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTiers
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var tiers []domain.LootTier
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		row++

		tier, err := parseTier(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		tiers = append(tiers, tier)
	}
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	return tiers, nil
}

func parseTier(record []string) (domain.LootTier, error) {
	name := strings.TrimSpace(record[0])
	if name == "" {
		return domain.LootTier{}, errors.New("empty tier name")
	}
	minLevel, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return domain.LootTier{}, fmt.Errorf("min level %q: %w", record[1], err)
	}
	maxLevel, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return domain.LootTier{}, fmt.Errorf("max level %q: %w", record[2], err)
	}
	if minLevel < domain.MinLevel || maxLevel > domain.MaxLevel || minLevel > maxLevel {
		return domain.LootTier{}, fmt.Errorf("level range %d-%d is out of bounds", minLevel, maxLevel)
	}
	return domain.LootTier{Name: name, MinLevel: minLevel, MaxLevel: maxLevel}, nil
}
