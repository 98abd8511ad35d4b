package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/joho/godotenv"
	"github.com/uaru-shit/joingate/pkg/utils"
)

const (
	defaultPollExpiration     = 24 * time.Hour
	defaultTestPollExpiration = 30 * time.Second
	defaultExpireMaxAttempts  = 5
	defaultExpireRetryDelay   = time.Minute
	defaultSessionTTL         = 10 * time.Minute
	defaultPollerTimeout      = 10 * time.Second
	defaultOpTimeout          = 15 * time.Second
)

type Config struct {
	Token    string
	MongoURI string
	MongoDB  string

	// AdminIDs holds every id from ADMIN_CHAT_ID; adminOrder keeps the listed order.
	AdminIDs   mapset.Set[int64]
	adminOrder []int64

	PollExpiration     time.Duration
	TestPollExpiration time.Duration
	ExpireMaxAttempts  int
	ExpireRetryDelay   time.Duration
	SessionTTL         time.Duration
	PollerTimeout      time.Duration
	OpTimeout          time.Duration
}

type Error struct {
	Field  string
	Reason string
}

func (e Error) Error() string {
	return "configuration error: " + e.Field + " " + e.Reason
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return FromLookup(os.LookupEnv)
}

// FromLookup builds the config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := lookup(key); ok && value != "" {
				return value
			}
		}

		return ""
	}

	cfg := &Config{
		Token:    get("BOT_TOKEN"),
		MongoURI: get("MONGODB_URI", "MONGO_URI"),
		MongoDB:  get("MONGODB_DB", "MONGO_DB"),
	}

	required := []struct {
		field string
		value string
	}{
		{"BOT_TOKEN", cfg.Token},
		{"MONGODB_URI", cfg.MongoURI},
		{"MONGODB_DB", cfg.MongoDB},
		{"ADMIN_CHAT_ID", get("ADMIN_CHAT_ID")},
	}

	for _, r := range required {
		if r.value == "" {
			return nil, Error{Field: r.field, Reason: "is required"}
		}
	}

	ids, err := utils.ParseIDList(get("ADMIN_CHAT_ID"))
	if err != nil {
		return nil, Error{Field: "ADMIN_CHAT_ID", Reason: err.Error()}
	}

	if len(ids) == 0 {
		return nil, Error{Field: "ADMIN_CHAT_ID", Reason: "has no ids"}
	}

	cfg.AdminIDs = mapset.NewSet(ids...)
	cfg.adminOrder = ids

	durations := []struct {
		field  string
		target *time.Duration
		def    time.Duration
	}{
		{"POLL_EXPIRATION", &cfg.PollExpiration, defaultPollExpiration},
		{"TEST_POLL_EXPIRATION", &cfg.TestPollExpiration, defaultTestPollExpiration},
		{"EXPIRE_RETRY_DELAY", &cfg.ExpireRetryDelay, defaultExpireRetryDelay},
		{"SESSION_TTL", &cfg.SessionTTL, defaultSessionTTL},
		{"POLLER_TIMEOUT", &cfg.PollerTimeout, defaultPollerTimeout},
		{"OP_TIMEOUT", &cfg.OpTimeout, defaultOpTimeout},
	}

	for _, d := range durations {
		*d.target = d.def

		raw := get(d.field)
		if raw == "" {
			continue
		}

		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return nil, Error{Field: d.field, Reason: fmt.Sprintf("is not a positive duration: %q", raw)}
		}

		*d.target = parsed
	}

	cfg.ExpireMaxAttempts = defaultExpireMaxAttempts
	if raw := get("EXPIRE_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, Error{Field: "EXPIRE_MAX_ATTEMPTS", Reason: fmt.Sprintf("is not a positive int: %q", raw)}
		}

		cfg.ExpireMaxAttempts = n
	}

	return cfg, nil
}

// PrimaryAdmin is the first id listed in ADMIN_CHAT_ID.
func (c *Config) PrimaryAdmin() int64 {
	if len(c.adminOrder) == 0 {
		return 0
	}

	return c.adminOrder[0]
}
