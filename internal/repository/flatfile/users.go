package flatfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/errs"
	"github.com/Lucius-40/lanshop/internal/model"
)

// userTimeLayout matches the ISO local date-time written by existing user
// files (no zone suffix).
const userTimeLayout = "2006-01-02T15:04:05"

// userFields is the column count of a user line:
// username|passwordHash|email|fullName|address|phone|registeredISO|active
const userFields = 8

// Users is the file-backed account store, keyed by lowercase username.
type Users struct {
	mu    sync.RWMutex
	path  string
	users map[string]*model.User
	log   *zap.Logger
}

// NewUsers constructs a Users store over the given file.
func NewUsers(path string, log *zap.Logger) *Users {
	return &Users{path: path, users: make(map[string]*model.User), log: log}
}

// Load replaces the in-memory map from the file, creating an empty file
// (and its parent directory) when missing.
func (s *Users) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*model.User)

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create users dir: %w", err)
		}
		if err := os.WriteFile(s.path, nil, 0o644); err != nil {
			return fmt.Errorf("create users file: %w", err)
		}
		s.log.Info("created new users file", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		u, ok := parseUserLine(line)
		if !ok {
			s.log.Warn("skipping malformed user line", zap.String("line", line))
			continue
		}
		s.users[u.Key()] = u
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read users file: %w", err)
	}

	s.log.Info("users loaded", zap.Int("users", len(s.users)))
	return nil
}

func parseUserLine(line string) (*model.User, bool) {
	tokens := strings.Split(line, "|")
	if len(tokens) < userFields {
		return nil, false
	}
	registered, err := time.Parse(userTimeLayout, tokens[6])
	if err != nil {
		// fractional seconds variant
		registered, err = time.Parse("2006-01-02T15:04:05.999999999", tokens[6])
		if err != nil {
			return nil, false
		}
	}
	active, err := strconv.ParseBool(tokens[7])
	if err != nil {
		return nil, false
	}
	return &model.User{
		Username:     tokens[0],
		PasswordHash: tokens[1],
		Email:        tokens[2],
		FullName:     tokens[3],
		Address:      tokens[4],
		Phone:        tokens[5],
		RegisteredAt: registered,
		Active:       active,
	}, true
}

// Create inserts a new user after duplicate checks and rewrites the file.
func (s *Users) Create(u *model.User) error {
	if strings.TrimSpace(u.Username) == "" || u.PasswordHash == "" {
		return fmt.Errorf("validation: empty username or password hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[u.Key()]; taken {
		return errs.ErrAlreadyExists
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return errs.ErrEmailTaken
		}
	}

	cpy := *u
	s.users[u.Key()] = &cpy
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.log.Info("user registered", zap.String("username", u.Username))
	return nil
}

func (s *Users) saveLocked() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create users file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, u := range s.users {
		fmt.Fprintf(w, "%s|%s|%s|%s|%s|%s|%s|%t\n",
			u.Username, u.PasswordHash, u.Email, u.FullName,
			u.Address, u.Phone, u.RegisteredAt.Format(userTimeLayout), u.Active)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write users file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close users file: %w", err)
	}
	return nil
}

// Get loads a user by username, case-insensitively.
func (s *Users) Get(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(username)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *u
	return &cpy, nil
}

// Exists reports whether the username is taken.
func (s *Users) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[strings.ToLower(username)]
	return ok
}

// EmailExists reports whether the email is bound to any account.
func (s *Users) EmailExists(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

// Count returns the number of users loaded.
func (s *Users) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
