package datasource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Backend names accepted by Open
const (
	BackendAuto    = "auto"
	BackendCDF     = "cdf"
	BackendNetCDF4 = "netcdf4"
)

var (
	// ErrUnknownBackend is returned by Open for backend names it does not know
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUnknownFormat is returned when auto detection does not recognise a file
	ErrUnknownFormat = errors.New("unrecognised file format")
)

var (
	cdf1Magic = []byte("CDF\x01")
	cdf2Magic = []byte("CDF\x02")
	hdf5Magic = []byte("\x89HDF")
)

// Open opens path with the named backend. BackendAuto (or "") picks the
// backend from the file signature.
func Open(path, backend string) (Source, error) {
	if backend == "" || backend == BackendAuto {
		var err error
		if backend, err = Detect(path); err != nil {
			return nil, err
		}
	}
	switch backend {
	case BackendCDF:
		return OpenCDF(path)
	case BackendNetCDF4:
		return OpenNetCDF4(path)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownBackend, backend)
}

// Detect returns the backend able to read path
func Detect(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	switch {
	case bytes.Equal(magic, cdf1Magic), bytes.Equal(magic, cdf2Magic):
		return BackendCDF, nil
	case bytes.Equal(magic, hdf5Magic):
		return BackendNetCDF4, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}
