package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	customlog "github.com/open-rover/controller/pkg/log"
)

// ErrNoCredentials is returned when no cached session exists.
var ErrNoCredentials = errors.New("no cached session credentials")

// credentialsFilename is the on-disk cache in the data directory.
const credentialsFilename = "rover_credentials.json"

// Credentials is the cached bus session material handed over by the
// authentication collaborator. It allows re-entering Connected without
// re-running the full handshake.
type Credentials struct {
	RobotID     string `json:"robotId"`
	Token       string `json:"token"`
	Topic       string `json:"topic"`
	ExtractedAt int64  `json:"extracted_at"`
}

// SessionService manages the cached session credentials.
type SessionService interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Clear() error
	Cached() bool
}

// fileSessionService implements SessionService against a JSON file in
// the data directory.
type fileSessionService struct {
	path   string
	logger customlog.Logger
	mu     sync.Mutex
}

// NewSessionService creates a SessionService storing credentials under
// dataDir.
func NewSessionService(dataDir string, logger customlog.Logger) (SessionService, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", dataDir, err)
	}
	return &fileSessionService{
		path:   filepath.Join(dataDir, credentialsFilename),
		logger: logger,
	}, nil
}

// Load reads the cached credentials.
func (s *fileSessionService) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("error reading credentials file '%s': %w", s.path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("error parsing credentials file '%s': %w", s.path, err)
	}
	if creds.RobotID == "" || creds.Token == "" {
		return nil, fmt.Errorf("credentials file '%s' is incomplete", s.path)
	}
	return &creds, nil
}

// Save persists the credentials, stamping ExtractedAt when unset.
func (s *fileSessionService) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if creds.ExtractedAt == 0 {
		creds.ExtractedAt = time.Now().Unix()
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("error writing credentials file '%s': %w", s.path, err)
	}
	s.logger.Infof("Session credentials cached for robot %s", creds.RobotID)
	return nil
}

// Clear removes the cached credentials. Missing file is not an error.
func (s *fileSessionService) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing credentials file '%s': %w", s.path, err)
	}
	s.logger.Infof("Session credentials cleared")
	return nil
}

// Cached reports whether usable credentials are present.
func (s *fileSessionService) Cached() bool {
	_, err := s.Load()
	return err == nil
}
