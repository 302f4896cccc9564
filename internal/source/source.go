// Package source fetches reading batches from the collaborator service and
// decodes user-supplied import files.
//
// A batch is a JSON array of reading records. The top level must parse;
// individual elements that fail to decode are kept as empty records so the
// buffer drops and counts them like any other malformed reading.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rewired-gh/comfortdash/internal/models"
)

var (
	// ErrFetchFailure wraps transport errors, non-2xx responses and
	// undecodable payloads from the collaborator.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrInvalidImportPayload is returned when an import does not parse as
	// a JSON array at the top level.
	ErrInvalidImportPayload = errors.New("invalid import payload")
)

// Fetcher returns the collaborator's current batch.
type Fetcher interface {
	FetchReadings(ctx context.Context) ([]models.RawReading, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]models.RawReading, error)

// FetchReadings calls f.
func (f FetcherFunc) FetchReadings(ctx context.Context) ([]models.RawReading, error) {
	return f(ctx)
}

// DecodeBatch parses a JSON array of reading records.
func DecodeBatch(data []byte) ([]models.RawReading, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("expected a JSON array")
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, err
	}

	raws := make([]models.RawReading, len(elements))
	for i, element := range elements {
		if err := json.Unmarshal(element, &raws[i]); err != nil {
			raws[i] = models.RawReading{}
		}
	}
	return raws, nil
}

// ParseImport decodes an import payload. Nothing is returned on failure, so
// callers cannot apply a partial batch.
func ParseImport(data []byte) ([]models.RawReading, error) {
	raws, err := DecodeBatch(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportPayload, err)
	}
	return raws, nil
}

// LoadImportFile reads and decodes an import file.
func LoadImportFile(path string) ([]models.RawReading, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return ParseImport(data)
}
