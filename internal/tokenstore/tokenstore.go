// Package tokenstore persists the remote bearer token sealed with AES-256-GCM,
// so a session survives restarts without keeping the token in plain text.
package tokenstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/caresync/internal/crypto"
	"github.com/mrlokans/caresync/internal/entities"
)

const (
	DefaultAccount     = "default"
	DefaultKeyFileName = ".caresync-token-key"
	saltFileSuffix     = ".salt"
)

// TokenStore keeps one sealed token per account in the session_tokens table.
type TokenStore struct {
	db      *gorm.DB
	sealer  *crypto.Sealer
	account string
}

// Config holds configuration for the token store
type Config struct {
	// EncryptionKey is the base64-encoded 32-byte encryption key.
	EncryptionKey string

	// Passphrase derives the key with argon2id when EncryptionKey is empty.
	// The salt lives next to KeyFilePath with a .salt suffix.
	Passphrase string

	// KeyFilePath is the path to the generated key file.
	// If empty, defaults to ~/.caresync-token-key
	KeyFilePath string

	// Account defaults to DefaultAccount.
	Account string
}

// New creates a TokenStore on an already migrated database.
func New(db *gorm.DB, cfg Config) (*TokenStore, error) {
	sealer, err := resolveSealer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
	}

	account := cfg.Account
	if account == "" {
		account = DefaultAccount
	}

	return &TokenStore{db: db, sealer: sealer, account: account}, nil
}

// resolveSealer picks the key source: explicit key, then passphrase, then key file.
func resolveSealer(cfg Config) (*crypto.Sealer, error) {
	if cfg.EncryptionKey != "" {
		return crypto.NewSealerFromBase64(cfg.EncryptionKey)
	}

	keyFilePath := GetKeyFilePath(cfg.KeyFilePath)

	if cfg.Passphrase != "" {
		salt, err := loadOrCreateSalt(keyFilePath + saltFileSuffix)
		if err != nil {
			return nil, err
		}
		return crypto.NewSealerFromPassphrase(cfg.Passphrase, salt)
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		return crypto.NewSealerFromBase64(strings.TrimSpace(string(data)))
	}

	newKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(newKey), 0600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}

	log.Printf("Generated new token encryption key and saved to %s", keyFilePath)
	return crypto.NewSealerFromBase64(newKey)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		salt, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode salt file %s: %w", path, err)
		}
		return salt, nil
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("failed to save salt to %s: %w", path, err)
	}
	return salt, nil
}

// SaveToken seals and stores the token, replacing any previous one.
func (s *TokenStore) SaveToken(token string) error {
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}

	row := &entities.SessionToken{Account: s.account, Token: sealed}
	result := s.db.Where("account = ?", s.account).
		Assign(map[string]any{
			"token":      sealed,
			"updated_at": time.Now(),
		}).
		FirstOrCreate(row)
	if result.Error != nil {
		return fmt.Errorf("failed to save token: %w", result.Error)
	}
	return nil
}

// LoadToken returns the stored token, or "" when there is none.
func (s *TokenStore) LoadToken() (string, error) {
	var row entities.SessionToken
	err := s.db.Where("account = ?", s.account).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}

	token, err := s.sealer.Open(row.Token)
	if err != nil {
		return "", fmt.Errorf("failed to open token: %w", err)
	}
	return token, nil
}

// ClearToken removes the stored token.
func (s *TokenStore) ClearToken() error {
	if err := s.db.Where("account = ?", s.account).Delete(&entities.SessionToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Touch updates the last_used_at timestamp.
func (s *TokenStore) Touch() error {
	result := s.db.Model(&entities.SessionToken{}).
		Where("account = ?", s.account).
		Update("last_used_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to update last used: %w", result.Error)
	}
	return nil
}

// GetKeyFilePath returns the path to the key file being used
func GetKeyFilePath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultKeyFileName
	}
	return filepath.Join(homeDir, DefaultKeyFileName)
}
