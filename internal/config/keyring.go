package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "Sentinela"
)

// KeyringManager handles secure credential storage in the OS keychain.
// Linux needs libsecret; headless systems (CI) report unavailable.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

func apiKeyItem(provider string) string {
	if provider == "" {
		provider = "openai"
	}
	return provider + "-api-key"
}

// SaveAPIKey stores the LLM API key for a provider in the OS keychain
func (km *KeyringManager) SaveAPIKey(provider, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if err := keyring.Set(KeyringService, apiKeyItem(provider), apiKey); err != nil {
		km.logger.Error("failed to save api key to keychain", "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.Info("api key saved to keychain", "service", KeyringService, "provider", provider)
	return nil
}

// GetAPIKey retrieves the LLM API key for a provider. A missing key is not
// an error.
func (km *KeyringManager) GetAPIKey(provider string) (string, error) {
	apiKey, err := keyring.Get(KeyringService, apiKeyItem(provider))
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get api key from keychain", "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return apiKey, nil
}

// DeleteAPIKey removes the API key for a provider from the OS keychain
func (km *KeyringManager) DeleteAPIKey(provider string) error {
	err := keyring.Delete(KeyringService, apiKeyItem(provider))
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

// IsAvailable checks if the OS keychain is usable
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// MaskAPIKey masks a credential for display, keeping only the edges
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
