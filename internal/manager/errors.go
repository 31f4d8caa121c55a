package manager

import "errors"

// ErrAlreadyLoading is returned while another load or unload is in flight.
var ErrAlreadyLoading = errors.New("model load already in progress")

// ErrNotLoaded is returned when no pipeline is loaded.
var ErrNotLoaded = errors.New("model not loaded")

// pathNotFoundError reports a model path missing at load time.
type pathNotFoundError struct{ path string }

func (e pathNotFoundError) Error() string { return "model path not found: " + e.path }

// ErrPathNotFound constructs a pathNotFoundError.
func ErrPathNotFound(path string) error { return pathNotFoundError{path: path} }

// IsPathNotFound reports whether err indicates a missing model path.
func IsPathNotFound(err error) bool {
	var e pathNotFoundError
	return errors.As(err, &e)
}

// IsAlreadyLoading reports whether err indicates a concurrent load.
func IsAlreadyLoading(err error) bool { return errors.Is(err, ErrAlreadyLoading) }

// IsNotLoaded reports whether err indicates that no model is loaded.
func IsNotLoaded(err error) bool { return errors.Is(err, ErrNotLoaded) }
