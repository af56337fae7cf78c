package dashboard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// envFile reads and patches a dotenv file in place. Comments, blank lines,
// and unrelated entries are preserved byte for byte; only the updated keys
// are rewritten.
type envFile struct {
	path string
	lock *flock.Flock
}

func newEnvFile(path string) *envFile {
	return &envFile{path: path, lock: flock.New(path + ".lock")}
}

func (f *envFile) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// values parses the file into a map. A missing file is an empty map.
func (f *envFile) values() (map[string]string, error) {
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
		if errors.Is(readErr, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, readErr
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		key, value, ok := splitEnvLine(line)
		if !ok {
			continue
		}
		vars[key] = value
	}
	return vars, nil
}

// setAll writes the given keys into the file, replacing existing entries in
// place and appending new ones at the end.
func (f *envFile) setAll(updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	if err := f.ensureLockDir(); err != nil {
		return err
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	defer f.lock.Unlock()

	var lines []string
	if b, err := os.ReadFile(f.path); err == nil {
		lines = strings.Split(string(b), "\n")
		// drop the marker element a trailing newline leaves behind
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	written := make(map[string]bool, len(updates))
	for i, line := range lines {
		key, _, ok := splitEnvLine(line)
		if !ok {
			continue
		}
		if v, hit := updates[key]; hit {
			lines[i] = key + `="` + v + `"`
			written[key] = true
		}
	}
	for key, v := range updates {
		if !written[key] {
			lines = append(lines, key+`="`+v+`"`)
		}
	}

	out := strings.Join(lines, "\n")
	if out != "" {
		out += "\n"
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *envFile) ensureLockDir() error {
	return os.MkdirAll(filepath.Dir(f.lock.Path()), 0o755)
}

// splitEnvLine parses one KEY=VALUE line. Blank lines and comments report
// ok=false. Surrounding quotes on the value are stripped.
func splitEnvLine(line string) (key, value string, ok bool) {
	stripped := strings.TrimSpace(line)
	if stripped == "" || strings.HasPrefix(stripped, "#") {
		return "", "", false
	}
	idx := strings.Index(stripped, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(stripped[:idx])
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(stripped[idx+1:])
	value = strings.Trim(value, `"`)
	value = strings.Trim(value, `'`)
	return key, value, true
}

// maskSecret hides all but the last 4 characters of a value.
func maskSecret(v string) string {
	const show = 4
	if v == "" {
		return ""
	}
	if len(v) <= show {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-show) + v[len(v)-show:]
}
