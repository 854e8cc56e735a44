package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

const (
	DefaultCorpusFile  = "posts.json"
	DefaultHistoryFile = "published_history.json"
)

// JSONStorage keeps the corpus and the history as two JSON documents in one
// directory. Writes go through a temp file and a rename.
type JSONStorage struct {
	CorpusPath  string
	HistoryPath string
	mu          sync.RWMutex
}

type corpusData struct {
	Posts   []domain.Post `json:"posts"`
	LastRun *time.Time    `json:"last_run"`
}

func NewJSONStorage(dir, corpusFile, historyFile string) (*JSONStorage, error) {
	if corpusFile == "" {
		corpusFile = DefaultCorpusFile
	}
	if historyFile == "" {
		historyFile = DefaultHistoryFile
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONStorage{
		CorpusPath:  filepath.Join(dir, corpusFile),
		HistoryPath: filepath.Join(dir, historyFile),
	}, nil
}

var _ ports.Store = (*JSONStorage)(nil)

// LoadCorpus returns an empty corpus when the file does not exist yet.
// Scores from disk are dropped.
func (s *JSONStorage) LoadCorpus(ctx context.Context) (*domain.Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data corpusData
	if err := readJSON(s.CorpusPath, &data); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewCorpus(nil), nil
		}
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	c := domain.NewCorpus(data.Posts)
	c.ClearScores()
	return c, nil
}

// LastRun reports the last_run stamp of the corpus file, if any.
func (s *JSONStorage) LastRun() (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data corpusData
	if err := readJSON(s.CorpusPath, &data); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data.LastRun, nil
}

func (s *JSONStorage) SaveCorpus(ctx context.Context, corpus *domain.Corpus, lastRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := corpusData{Posts: corpus.Posts(), LastRun: &lastRun}
	if data.Posts == nil {
		data.Posts = []domain.Post{}
	}
	if err := writeJSON(s.CorpusPath, data); err != nil {
		return fmt.Errorf("save corpus: %w", err)
	}
	return nil
}

func (s *JSONStorage) LoadHistory(ctx context.Context) (*domain.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := domain.NewHistory()
	if err := readJSON(s.HistoryPath, h); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewHistory(), nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	return h, nil
}

func (s *JSONStorage) SaveHistory(ctx context.Context, history *domain.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.HistoryPath, history); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (s *JSONStorage) Close() error {
	return nil
}

func readJSON(path string, v any) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(file, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
