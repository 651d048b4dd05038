package kaypro

import (
	"os"

	"github.com/pkg/errors"
)

// LoadROM reads a ROM image from path. If the file cannot be read and a
// non-nil fallback is given, it returns that embedded default instead of an
// error; with a nil fallback the wrapped read error is returned.
func LoadROM(path string, fallback []byte) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if fallback != nil {
			return fallback, nil
		}
		return nil, errors.Wrapf(err, "load ROM %q", path)
	}
	return data, nil
}
