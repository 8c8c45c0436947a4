package settings

import "fmt"

// LoadError reports a section of the settings file that could not be read.
// The store recovers by using defaults for that section; Section is empty
// when the whole file was unreadable.
type LoadError struct {
	Path    string
	Section string
	Key     string
	Err     error
}

func (e *LoadError) Error() string {
	switch {
	case e.Section == "":
		return fmt.Sprintf("reading %s: %v (using defaults)", e.Path, e.Err)
	case e.Key != "":
		return fmt.Sprintf("reading %s: [%s] %s: %v (using defaults for [%s])", e.Path, e.Section, e.Key, e.Err, e.Section)
	default:
		return fmt.Sprintf("reading %s: [%s]: %v (using defaults for [%s])", e.Path, e.Section, e.Err, e.Section)
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a filesystem fault while persisting settings.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("saving settings to %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// ValidationError reports a value that is out of range or malformed.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Key, e.Reason)
}
