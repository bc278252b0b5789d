package parquetio

import (
	"fmt"
	"os"

	"github.com/softwareheritage/provenance/internal/eliasfano"
)

func writeSidecar(path string, ef *eliasfano.EliasFano) error {
	data, err := ef.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return nil
}

func readSidecar(path string) (*eliasfano.EliasFano, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ef := &eliasfano.EliasFano{}
	if err := ef.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("parquetio: corrupt sidecar %s: %w", path, err)
	}
	return ef, nil
}
