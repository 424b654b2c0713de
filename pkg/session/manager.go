package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/vesper/internal/tracing"
)

// Message represents a single conversation turn
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Entry represents a message with its session key
type Entry struct {
	SessionKey string  `json:"session_key"`
	Message    Message `json:"message"`
}

// Store persists conversation transcripts as JSONL files, one per session key.
type Store struct {
	dir        string
	logger     zerolog.Logger
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// New creates a transcript store rooted at dir. An empty dir defaults to
// ~/.vesper/sessions.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".vesper", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		logger:     logger,
		writeLocks: make(map[string]*sync.Mutex),
	}

	logger.Info().Str("dir", dir).Msg("Transcript store initialized")

	return s, nil
}

// validateSessionKey rejects keys that could escape the store directory.
func (s *Store) validateSessionKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(sessionKey string) string {
	return filepath.Join(s.dir, sessionKey+".jsonl")
}

// getWriteLock gets or creates a write lock for a session
func (s *Store) getWriteLock(sessionKey string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[sessionKey]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.writeLocks[sessionKey] = lock
	return lock
}

func (s *Store) releaseWriteLock(sessionKey string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, sessionKey)
}

// Append appends a message to a session transcript, creating it on first use.
func (s *Store) Append(ctx context.Context, sessionKey string, message Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("session_key", sessionKey).Logger()

	if err := s.validateSessionKey(sessionKey); err != nil {
		return err
	}
	if message.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if message.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	lock := s.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(s.path(sessionKey), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(Entry{SessionKey: sessionKey, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	logger.Debug().Str("role", message.Role).Msg("Message appended")

	return nil
}

// Load loads all messages from a session transcript. A missing transcript
// yields an empty slice.
func (s *Store) Load(ctx context.Context, sessionKey string) ([]Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("session_key", sessionKey).Logger()

	if err := s.validateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}

		// Malformed entries are skipped, not fatal
		if entry.Message.Role == "" || entry.Message.Content == "" {
			logger.Warn().Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	logger.Debug().Int("messages", len(entries)).Msg("Transcript loaded")

	return entries, nil
}

// Replace atomically rewrites a session transcript with the given entries.
func (s *Store) Replace(ctx context.Context, sessionKey string, entries []Entry) error {
	if err := s.validateSessionKey(sessionKey); err != nil {
		return err
	}

	lock := s.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sessionPath := s.path(sessionKey)
	tempPath := sessionPath + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Delete removes a session transcript.
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("session_key", sessionKey).Logger()

	if err := s.validateSessionKey(sessionKey); err != nil {
		return err
	}

	// Wait for any in-progress writes
	lock := s.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(sessionKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	s.releaseWriteLock(sessionKey)

	logger.Info().Msg("Transcript deleted")

	return nil
}

// List lists all session keys with a transcript on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}

		sessions = append(sessions, strings.TrimSuffix(name, ".jsonl"))
	}

	return sessions, nil
}

// Info returns size, modification time, and message count for a transcript.
type Info struct {
	SessionKey   string    `json:"session_key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	MessageCount int       `json:"message_count"`
}

// GetInfo returns metadata about a session transcript.
func (s *Store) GetInfo(sessionKey string) (*Info, error) {
	if err := s.validateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	stat, err := os.Stat(s.path(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session does not exist")
		}
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	entries, err := s.Load(context.Background(), sessionKey)
	if err != nil {
		return nil, err
	}

	return &Info{
		SessionKey:   sessionKey,
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
		MessageCount: len(entries),
	}, nil
}

// Close releases the store's in-memory state.
func (s *Store) Close() error {
	s.locksMu.Lock()
	s.writeLocks = make(map[string]*sync.Mutex)
	s.locksMu.Unlock()
	return nil
}
