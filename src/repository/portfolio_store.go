package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"

	"papertrader/src/model"
)

// StateDocument is the full persisted state: every portfolio document plus
// the shared risk state. It is written as one unit so a crash can never
// leave portfolios and risk state from different ticks on disk.
type StateDocument struct {
	Portfolios []*model.Portfolio `json:"portfolios"`
	Risk       *model.RiskState   `json:"risk"`
	SavedAt    time.Time          `json:"saved_at"`
}

// PortfolioStore persists the full engine state between ticks.
type PortfolioStore interface {
	Load() (*StateDocument, error)
	Save(doc *StateDocument) error
}

// FileStore is a PortfolioStore backed by a single JSON file. Save writes to
// a temp file in the same directory and renames it over the target, so a
// reader always sees either the old document or the new one, never a torn
// write.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the state document from disk. A missing file is not an error;
// it returns an empty document so a fresh deployment starts clean.
func (s *FileStore) Load() (*StateDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("path", s.path).Info("no state file found, starting with empty state")
			return &StateDocument{Risk: model.NewRiskState()}, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", s.path, err)
	}

	var doc StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if doc.Risk == nil {
		doc.Risk = model.NewRiskState()
	}
	for _, p := range doc.Portfolios {
		if p.Positions == nil {
			p.Positions = make(map[string]*model.Position)
		}
	}

	logger.WithFields(logger.Fields{
		"path":       s.path,
		"portfolios": len(doc.Portfolios),
	}).Info("state document loaded")

	return &doc, nil
}

// Save atomically replaces the state file with the given document.
func (s *FileStore) Save(doc *StateDocument) error {
	doc.SavedAt = time.Now()
	sort.Slice(doc.Portfolios, func(i, j int) bool {
		return doc.Portfolios[i].ID < doc.Portfolios[j].ID
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	logger.WithFields(logger.Fields{
		"path":       s.path,
		"portfolios": len(doc.Portfolios),
		"bytes":      len(data),
	}).Debug("state document saved")

	return nil
}
