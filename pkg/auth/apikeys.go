package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrInvalidAPIKey covers unknown ids and hash mismatches alike.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKey is one entry of the keys file. Keys are presented as "<id>.<secret>";
// only the bcrypt hash of the secret is stored.
type APIKey struct {
	ID    string   `yaml:"id"`
	Email string   `yaml:"email"`
	Roles []string `yaml:"roles"`
	Hash  string   `yaml:"hash"`
}

type apiKeyFile struct {
	Keys []APIKey `yaml:"keys"`
}

// APIKeyStore authenticates service callers.
type APIKeyStore struct {
	keys map[string]APIKey
}

// NewAPIKeyStore indexes keys by id. Duplicate ids are rejected.
func NewAPIKeyStore(keys []APIKey) (*APIKeyStore, error) {
	s := &APIKeyStore{keys: make(map[string]APIKey, len(keys))}
	for _, k := range keys {
		if k.ID == "" || k.Hash == "" {
			return nil, fmt.Errorf("api key entry requires id and hash")
		}
		if strings.Contains(k.ID, ".") {
			return nil, fmt.Errorf("api key id %q must not contain '.'", k.ID)
		}
		if _, dup := s.keys[k.ID]; dup {
			return nil, fmt.Errorf("duplicate api key id %q", k.ID)
		}
		s.keys[k.ID] = k
	}
	return s, nil
}

// LoadAPIKeys reads a YAML keys file.
func LoadAPIKeys(path string) (*APIKeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api keys: %w", err)
	}
	var f apiKeyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse api keys: %w", err)
	}
	return NewAPIKeyStore(f.Keys)
}

// Authenticate resolves a presented key to its principal.
func (s *APIKeyStore) Authenticate(presented string) (Principal, error) {
	id, secret, ok := strings.Cut(presented, ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrInvalidAPIKey
	}
	k, found := s.keys[id]
	if !found {
		return nil, ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(secret)); err != nil {
		return nil, ErrInvalidAPIKey
	}
	return &BasePrincipal{ID: "apikey:" + k.ID, Email: k.Email, Roles: k.Roles}, nil
}

// Len returns the number of configured keys.
func (s *APIKeyStore) Len() int {
	return len(s.keys)
}

// HashAPIKeySecret returns the bcrypt hash to store for secret.
func HashAPIKeySecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
