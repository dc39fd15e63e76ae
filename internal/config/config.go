// Package config loads runtime configuration from the environment.
// All tunables live here so the gatekeeping packages never reach for
// os.Getenv themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime tunable for the report gatekeeper.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// DBPath is the location of the bbolt database file.
	DBPath string

	// BackupDir receives timestamped backup snapshots.
	BackupDir string

	// UploadDir receives accepted file artifacts.
	UploadDir string

	// AdminToken authorizes the admin endpoints. Empty disables them.
	AdminToken string

	// EncryptionKey is the key material for at-rest encryption of
	// sensitive report fields. The AEAD key is derived from it, it is
	// never used directly.
	EncryptionKey string

	// AddressSalt is mixed into client address hashes so raw addresses
	// are never stored.
	AddressSalt string

	// PerSessionLimit is the maximum number of submissions one session
	// may make before being throttled.
	PerSessionLimit int

	// PerFingerprintLimit caps the aggregate submissions across all
	// sessions sharing a fingerprint.
	PerFingerprintLimit int

	// MaxFileBytes is the per-file upload size ceiling.
	MaxFileBytes int64

	// SessionTTL is the inactivity window after which sessions expire.
	SessionTTL time.Duration

	// SweepInterval is how often expired sessions are purged.
	SweepInterval time.Duration

	// RiskMediumThreshold is the score above which a session is flagged
	// as medium risk (observability only, no blocking).
	RiskMediumThreshold int

	// RiskBlacklistThreshold is the score above which a session is
	// permanently blacklisted.
	RiskBlacklistThreshold int

	// RiskVolumeFreeSubmissions is how many submissions a session gets
	// before further ones start accruing risk.
	RiskVolumeFreeSubmissions int

	// RiskVolumePenalty is added per submission past the free quota.
	RiskVolumePenalty int

	// RiskContentPenalty is added per matched content heuristic.
	RiskContentPenalty int
}

// Default values. The risk numbers are a starting configuration, not
// policy; they are expected to be tuned in deployment.
const (
	DefaultPort                = "18920"
	DefaultPerSessionLimit     = 3
	DefaultPerFingerprintLimit = 5
	DefaultMaxFileBytes        = 10 << 20 // 10 MiB
	DefaultSessionTTL          = 24 * time.Hour
	DefaultSweepInterval       = 10 * time.Minute
	DefaultMediumThreshold     = 50
	DefaultBlacklistThreshold  = 100
	DefaultFreeSubmissions     = 3
	DefaultVolumePenalty       = 10
	DefaultContentPenalty      = 15
)

// Load reads configuration from the environment, applying defaults for
// anything unset. It fails only on values that cannot be parsed or on a
// missing encryption key, since running without one would silently store
// plaintext.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                      envOr("PORT", DefaultPort),
		DBPath:                    envOr("WUWA_DB_PATH", "wuwareport.db"),
		BackupDir:                 envOr("WUWA_BACKUP_DIR", "backups"),
		UploadDir:                 envOr("WUWA_UPLOAD_DIR", "uploads"),
		AdminToken:                os.Getenv("WUWA_ADMIN_TOKEN"),
		EncryptionKey:             os.Getenv("WUWA_ENCRYPTION_KEY"),
		AddressSalt:               envOr("WUWA_ADDRESS_SALT", "wuwa-report-salt"),
		PerSessionLimit:           DefaultPerSessionLimit,
		PerFingerprintLimit:       DefaultPerFingerprintLimit,
		MaxFileBytes:              DefaultMaxFileBytes,
		SessionTTL:                DefaultSessionTTL,
		SweepInterval:             DefaultSweepInterval,
		RiskMediumThreshold:       DefaultMediumThreshold,
		RiskBlacklistThreshold:    DefaultBlacklistThreshold,
		RiskVolumeFreeSubmissions: DefaultFreeSubmissions,
		RiskVolumePenalty:         DefaultVolumePenalty,
		RiskContentPenalty:        DefaultContentPenalty,
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("WUWA_ENCRYPTION_KEY must be set")
	}

	var err error
	if cfg.PerSessionLimit, err = envInt("WUWA_SESSION_LIMIT", cfg.PerSessionLimit); err != nil {
		return nil, err
	}
	if cfg.PerFingerprintLimit, err = envInt("WUWA_FINGERPRINT_LIMIT", cfg.PerFingerprintLimit); err != nil {
		return nil, err
	}
	if cfg.RiskMediumThreshold, err = envInt("WUWA_RISK_MEDIUM", cfg.RiskMediumThreshold); err != nil {
		return nil, err
	}
	if cfg.RiskBlacklistThreshold, err = envInt("WUWA_RISK_BLACKLIST", cfg.RiskBlacklistThreshold); err != nil {
		return nil, err
	}
	if v := os.Getenv("WUWA_MAX_FILE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WUWA_MAX_FILE_BYTES: %w", err)
		}
		cfg.MaxFileBytes = n
	}
	if v := os.Getenv("WUWA_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WUWA_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}
	if v := os.Getenv("WUWA_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WUWA_SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = d
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
