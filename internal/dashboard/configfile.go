package dashboard

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	yaml "go.yaml.in/yaml/v3"

	"github.com/ismaildakrory/immich-memories-notify/internal/config"
)

// configFile edits the config YAML as a generic document, so secret
// placeholders like ${IMMICH_API_KEY_X} survive round-trips unexpanded.
// The lock file is shared with every other process that touches the path.
type configFile struct {
	path string
	lock *flock.Flock
}

func newConfigFile(path string) *configFile {
	return &configFile{path: path, lock: flock.New(path + ".lock")}
}

// load reads the document under a shared lock.
func (f *configFile) load() (map[string]any, error) {
	if err := f.ensureLockDir(); err != nil {
		return nil, err
	}
	if err := f.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	b, readErr := os.ReadFile(f.path)
	if err := f.lock.Unlock(); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", f.lock.Path(), err)
	}
	if readErr != nil {
		return nil, readErr
	}
	return parseDoc(f.path, b)
}

// update applies fn to the document and writes the result back, holding the
// exclusive lock across the whole read-modify-write. The mutated document
// must still pass the strict loader; an edit that would leave the file
// unloadable by the dispatcher is refused.
func (f *configFile) update(fn func(doc map[string]any) error) error {
	if err := f.ensureLockDir(); err != nil {
		return err
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	defer f.lock.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	doc, err := parseDoc(f.path, b)
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if _, err := config.DecodeStrict(f.path, out); err != nil {
		return &httpError{status: http.StatusBadRequest, msg: "invalid config: " + err.Error()}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *configFile) ensureLockDir() error {
	return os.MkdirAll(filepath.Dir(f.lock.Path()), 0o755)
}

func parseDoc(path string, b []byte) (map[string]any, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
