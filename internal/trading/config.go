package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"terminal-core/internal/registry"
	"terminal-core/pkg/bridge"
	"terminal-core/pkg/db"
)

var (
	ErrConfigNotFound = errors.New("account config not found")
	ErrConfigInvalid  = errors.New("account config invalid")
)

// Instrument is one enabled symbol with its strategy parameters. Read-only
// input to a trading pass.
type Instrument struct {
	Symbol       string             `yaml:"symbol"`
	StrategyType string             `yaml:"strategy"`
	Parameters   map[string]float64 `yaml:"parameters"`
	Enabled      bool               `yaml:"enabled"`
}

// AccountConfig is the per-account instrument set.
type AccountConfig struct {
	Ref         registry.AccountRef
	Instruments []Instrument
}

// ConfigStore resolves the configuration for one account.
type ConfigStore interface {
	LoadAccountConfig(ctx context.Context, ref registry.AccountRef) (*AccountConfig, error)
}

// fileAccount is one entry of the accounts YAML file.
type fileAccount struct {
	ID          string       `yaml:"id"`
	Login       int64        `yaml:"login"`
	Password    string       `yaml:"password"`
	Server      string       `yaml:"server"`
	Instruments []Instrument `yaml:"instruments"`
}

type accountsFile struct {
	Accounts []fileAccount `yaml:"accounts"`
}

// FileStore serves worker account configuration from a YAML file. It also
// resolves bridge credentials for the worker pool.
type FileStore struct {
	mu       sync.RWMutex
	accounts map[string]fileAccount
}

// NewFileStore parses the accounts file once at startup.
func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	// Credentials may reference environment variables, e.g. "${ALPHA_PASSWORD}".
	data = []byte(os.ExpandEnv(string(data)))

	var file accountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, ErrConfigInvalid)
	}

	accounts := make(map[string]fileAccount, len(file.Accounts))
	for _, a := range file.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("%s: account with empty id: %w", path, ErrConfigInvalid)
		}
		if _, dup := accounts[a.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate account id %q: %w", path, a.ID, ErrConfigInvalid)
		}
		accounts[a.ID] = a
	}
	return &FileStore{accounts: accounts}, nil
}

// EmptyFileStore returns a store with no accounts, for deployments that run
// legacy sessions only.
func EmptyFileStore() *FileStore {
	return &FileStore{accounts: make(map[string]fileAccount)}
}

// AccountIDs lists all configured worker account ids.
func (s *FileStore) AccountIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids
}

// LoadAccountConfig returns the instrument set for a worker account.
func (s *FileStore) LoadAccountConfig(ctx context.Context, ref registry.AccountRef) (*AccountConfig, error) {
	s.mu.RLock()
	a, ok := s.accounts[ref.Key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account %s: %w", ref.Key, ErrConfigNotFound)
	}
	return &AccountConfig{Ref: ref, Instruments: a.Instruments}, nil
}

// Credentials implements pool.CredentialSource.
func (s *FileStore) Credentials(accountID string) (bridge.Credentials, error) {
	s.mu.RLock()
	a, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return bridge.Credentials{}, fmt.Errorf("account %s: %w", accountID, ErrConfigNotFound)
	}
	return bridge.Credentials{Login: a.Login, Password: a.Password, Server: a.Server}, nil
}

// DBStore serves legacy session configuration from the database.
type DBStore struct {
	database *db.Database
}

func NewDBStore(database *db.Database) *DBStore {
	return &DBStore{database: database}
}

// LoadAccountConfig returns the instrument set for a legacy session. A login
// with no instrument rows yields an empty config: the pass is a no-op.
func (s *DBStore) LoadAccountConfig(ctx context.Context, ref registry.AccountRef) (*AccountConfig, error) {
	login, err := strconv.ParseInt(ref.Key, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session key %q is not a login: %w", ref.Key, ErrConfigInvalid)
	}

	rows, err := s.database.ListSessionInstruments(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("load session %d instruments: %w", login, err)
	}

	cfg := &AccountConfig{Ref: ref, Instruments: make([]Instrument, 0, len(rows))}
	for _, row := range rows {
		params := map[string]float64{}
		if row.Parameters != "" {
			if err := json.Unmarshal([]byte(row.Parameters), &params); err != nil {
				return nil, fmt.Errorf("session %d %s parameters: %v: %w", login, row.Symbol, err, ErrConfigInvalid)
			}
		}
		cfg.Instruments = append(cfg.Instruments, Instrument{
			Symbol:       row.Symbol,
			StrategyType: row.StrategyType,
			Parameters:   params,
			Enabled:      row.IsActive,
		})
	}
	return cfg, nil
}
