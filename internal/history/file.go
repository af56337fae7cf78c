package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// fileStore is a dependency-free backend: an append-only JSON Lines file.
// Reads scan the file fresh, so a dashboard process can tail the same
// file a notify run appends to.
type fileStore struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	file *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, file: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendSend(ctx context.Context, r SendRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.file).Encode(r)
}

// RecentSends returns up to limit records, newest first. Unparseable
// lines are skipped rather than failing the whole read.
func (s *fileStore) RecentSends(ctx context.Context, limit int) ([]SendRecord, error) {
	_ = ctx
	if limit <= 0 {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var tail []SendRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r SendRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		tail = append(tail, r)
		if len(tail) > limit {
			tail = tail[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// newest first
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return tail, nil
}
