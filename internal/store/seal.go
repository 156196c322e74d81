package store

import (
	"fmt"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/crypto"
)

// Option configures a store implementation.
type Option func(*options)

type options struct {
	sealer *crypto.Sealer
}

// WithSealer encrypts bank SFTP credentials before they are written.
// Values stored before sealing was enabled are still readable.
func WithSealer(s *crypto.Sealer) Option {
	return func(o *options) { o.sealer = s }
}

// sealSecrets returns the credential column values for a config,
// sealed when a sealer is configured. The caller's config is left
// untouched.
func sealSecrets(s *crypto.Sealer, cfg *bank.Config) (password string, privateKey []byte, err error) {
	if s == nil {
		return cfg.Password, cfg.PrivateKey, nil
	}
	password, err = s.Seal(cfg.Password)
	if err != nil {
		return "", nil, fmt.Errorf("seal password for %s: %w", cfg.BankCode, err)
	}
	if len(cfg.PrivateKey) > 0 {
		sealed, err := s.Seal(string(cfg.PrivateKey))
		if err != nil {
			return "", nil, fmt.Errorf("seal private key for %s: %w", cfg.BankCode, err)
		}
		privateKey = []byte(sealed)
	}
	return password, privateKey, nil
}

// openSecrets decrypts a freshly scanned config in place.
func openSecrets(s *crypto.Sealer, cfg *bank.Config) error {
	if s == nil {
		return nil
	}
	password, err := s.Open(cfg.Password)
	if err != nil {
		return fmt.Errorf("open password for %s: %w", cfg.BankCode, err)
	}
	cfg.Password = password
	if len(cfg.PrivateKey) > 0 {
		privateKey, err := s.Open(string(cfg.PrivateKey))
		if err != nil {
			return fmt.Errorf("open private key for %s: %w", cfg.BankCode, err)
		}
		cfg.PrivateKey = []byte(privateKey)
	}
	return nil
}
