package settings

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-ini/ini"
)

// INI section names, as written by earlier control panel releases.
const (
	sectionServer    = "Server"
	sectionRateLimit = "RateLimit"
	sectionModels    = "Models"
)

// loadOptions read back exactly what encode wrote: quotes around a value
// are part of it and a trailing backslash does not continue the line.
var loadOptions = ini.LoadOptions{
	PreserveSurroundedQuote: true,
	IgnoreContinuation:      true,
}

// Store reads and writes the settings document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for path, falling back to DefaultPath when empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a settings file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the settings file. The returned document is never nil: a
// missing file yields defaults, and every malformed section is replaced by
// its defaults. A non-nil error lists what was recovered (one *LoadError per
// section) and is meant to be reported, not treated as fatal.
func (s *Store) Load() (*Document, error) {
	doc := Defaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Settings file not found, using defaults", "path", s.path)
			return doc, nil
		}
		return doc, &LoadError{Path: s.path, Err: err}
	}

	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return doc, &LoadError{Path: s.path, Err: fmt.Errorf("parsing ini: %w", err)}
	}

	var errs []error
	if server, key, err := readServer(f); err != nil {
		errs = append(errs, &LoadError{Path: s.path, Section: sectionServer, Key: key, Err: err})
	} else {
		doc.Server = server
	}
	if rl, key, err := readRateLimit(f); err != nil {
		errs = append(errs, &LoadError{Path: s.path, Section: sectionRateLimit, Key: key, Err: err})
	} else {
		doc.RateLimit = rl
	}
	if models, key, err := readModels(f); err != nil {
		errs = append(errs, &LoadError{Path: s.path, Section: sectionModels, Key: key, Err: err})
	} else {
		doc.Models = models
	}

	return doc, errors.Join(errs...)
}

// Save validates doc and replaces the settings file with it. The new content
// is written to a temporary file in the same directory and renamed into
// place, so readers never observe a partial write.
func (s *Store) Save(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	f := encode(doc)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &SaveError{Path: s.path, Err: fmt.Errorf("creating directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &SaveError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := f.WriteTo(tmp); err != nil {
		cleanup()
		return &SaveError{Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &SaveError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: s.path, Err: err}
	}
	// The file carries the API key.
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: s.path, Err: err}
	}

	slog.Debug("Settings saved", "path", s.path)
	return nil
}

// encode lays doc out in the INI sections and keys the relay expects.
func encode(doc *Document) *ini.File {
	f := ini.Empty()
	server := f.Section(sectionServer)
	server.Key("host").SetValue(doc.Server.Host)
	server.Key("port").SetValue(strconv.Itoa(doc.Server.Port))
	server.Key("memcached_enabled").SetValue(strconv.FormatBool(doc.Server.MemcachedEnabled))
	server.Key("memcached_url").SetValue(doc.Server.MemcachedURL)
	server.Key("api_key").SetValue(doc.Server.APIKey)

	rl := f.Section(sectionRateLimit)
	rl.Key("enabled").SetValue(strconv.FormatBool(doc.RateLimit.Enabled))
	rl.Key("value").SetValue(strconv.Itoa(doc.RateLimit.Value))
	rl.Key("period").SetValue(string(doc.RateLimit.Period))

	models := f.Section(sectionModels)
	models.Key("permit_subset_only").SetValue(strconv.FormatBool(doc.Models.PermitSubsetOnly))
	models.Key("permitted_models").SetValue(doc.Models.PermittedModels)
	return f
}

// WriteINI writes doc in the settings file format without touching disk.
func (d *Document) WriteINI(w io.Writer) error {
	_, err := encode(d).WriteTo(w)
	return err
}

// sectionReader pulls typed values out of one INI section, remembering the
// first key that failed to parse.
type sectionReader struct {
	sec     *ini.Section
	failKey string
	err     error
}

func (r *sectionReader) str(key string, dst *string) {
	if r.err != nil || !r.sec.HasKey(key) {
		return
	}
	*dst = r.sec.Key(key).Value()
}

func (r *sectionReader) integer(key string, dst *int, lo, hi int) {
	if r.err != nil || !r.sec.HasKey(key) {
		return
	}
	raw := r.sec.Key(key).Value()
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.failKey, r.err = key, fmt.Errorf("not an integer: %q", raw)
		return
	}
	if c := clamp(n, lo, hi); c != n {
		slog.Debug("Clamped out-of-range setting", "section", r.sec.Name(), "key", key, "value", n, "clamped", c)
		n = c
	}
	*dst = n
}

func (r *sectionReader) boolean(key string, dst *bool) {
	if r.err != nil || !r.sec.HasKey(key) {
		return
	}
	b, err := parseBool(r.sec.Key(key).Value())
	if err != nil {
		r.failKey, r.err = key, err
		return
	}
	*dst = b
}

func readServer(f *ini.File) (ServerSection, string, error) {
	s := defaultServer()
	sec, err := f.GetSection(sectionServer)
	if err != nil {
		return s, "", nil
	}
	r := &sectionReader{sec: sec}
	r.str("host", &s.Host)
	r.integer("port", &s.Port, MinPort, MaxPort)
	r.boolean("memcached_enabled", &s.MemcachedEnabled)
	r.str("memcached_url", &s.MemcachedURL)
	r.str("api_key", &s.APIKey)
	if r.err != nil {
		return defaultServer(), r.failKey, r.err
	}
	return s, "", nil
}

func readRateLimit(f *ini.File) (RateLimitSection, string, error) {
	rl := defaultRateLimit()
	sec, err := f.GetSection(sectionRateLimit)
	if err != nil {
		return rl, "", nil
	}
	r := &sectionReader{sec: sec}
	r.boolean("enabled", &rl.Enabled)
	r.integer("value", &rl.Value, MinRateLimitValue, MaxRateLimitValue)
	var period string
	r.str("period", &period)
	if r.err != nil {
		return defaultRateLimit(), r.failKey, r.err
	}
	if period != "" {
		if p, err := ParsePeriod(period); err == nil {
			rl.Period = p
		} else {
			slog.Debug("Unknown rate limit period, keeping default", "period", period)
		}
	}
	return rl, "", nil
}

func readModels(f *ini.File) (ModelsSection, string, error) {
	m := defaultModels()
	sec, err := f.GetSection(sectionModels)
	if err != nil {
		return m, "", nil
	}
	r := &sectionReader{sec: sec}
	r.boolean("permit_subset_only", &m.PermitSubsetOnly)
	r.str("permitted_models", &m.PermittedModels)
	if r.err != nil {
		return defaultModels(), r.failKey, r.err
	}
	return m, "", nil
}
