package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/mbergmann/elternwahl/models"
)

type Config struct {
	Port        int
	DatabaseURL string

	// Admin authentication (X-Admin-Key header)
	AdminKey string

	// Audit configuration. The secrets fall back to fixed dev values so
	// that signing stays deterministic and verifiable even when nothing
	// is configured; deployment is responsible for setting real ones.
	AuditHMACKey string
	AuditSalt    string
	AuditHashIP  bool // true: salted hash, false: /24 truncation

	// Per-school ballot bounds
	MaxChoicesPrimary   int
	MaxChoicesSecondary int

	// Optional voting window; nil means unbounded on that side
	VotingStart *time.Time
	VotingEnd   *time.Time
}

// MaxChoices returns the ballot bound for a school.
func (c Config) MaxChoices(school models.School) int {
	if school == models.SchoolSecondary {
		return c.MaxChoicesSecondary
	}
	return c.MaxChoicesPrimary
}

// ParseFlags validates flags and sets port number
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("elternwahl", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.AdminKey, "admin-key", "", "Admin API key (prefer env)")
	fs.StringVar(&cfg.AuditHMACKey, "audit-key", "", "Audit HMAC key (prefer env)")
	fs.StringVar(&cfg.AuditSalt, "audit-salt", "", "IP masking salt (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3000 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	// Admin key MUST be provided
	if cfg.AdminKey == "" {
		cfg.AdminKey = os.Getenv("ADMIN_KEY")
	}
	if cfg.AdminKey == "" {
		return Config{}, errors.New("ADMIN_KEY required")
	}

	// Audit secrets fall back to clearly-non-production defaults so the
	// chain stays internally consistent without configuration.
	if cfg.AuditHMACKey == "" {
		cfg.AuditHMACKey = os.Getenv("AUDIT_HMAC_KEY")
	}
	if cfg.AuditHMACKey == "" {
		cfg.AuditHMACKey = "dev-key-change-me"
	}
	if cfg.AuditSalt == "" {
		cfg.AuditSalt = os.Getenv("AUDIT_SALT")
	}
	if cfg.AuditSalt == "" {
		cfg.AuditSalt = "change-me"
	}
	cfg.AuditHashIP = os.Getenv("AUDIT_HASH_IP") == "1"

	var err error
	cfg.MaxChoicesPrimary, err = boundFromEnv("MAX_CHOICES_PRIMARY", 12)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxChoicesSecondary, err = boundFromEnv("MAX_CHOICES_SECONDARY", 7)
	if err != nil {
		return Config{}, err
	}

	cfg.VotingStart, err = timeFromEnv("VOTING_START")
	if err != nil {
		return Config{}, err
	}
	cfg.VotingEnd, err = timeFromEnv("VOTING_END")
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func boundFromEnv(name string, fallback int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + name + " env variable")
	}
	return n, nil
}

func timeFromEnv(name string) (*time.Time, error) {
	s := os.Getenv(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.New("invalid " + name + " env variable (want RFC 3339)")
	}
	return &t, nil
}
