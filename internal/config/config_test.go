package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"BOT_TOKEN":     "123:abc",
		"MONGODB_URI":   "mongodb://localhost:27017",
		"MONGODB_DB":    "gatekeeper",
		"ADMIN_CHAT_ID": "42, 7",
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Token)
	assert.Equal(t, "gatekeeper", cfg.MongoDB)
	assert.True(t, cfg.AdminIDs.Contains(42))
	assert.True(t, cfg.AdminIDs.Contains(7))
	assert.Equal(t, int64(42), cfg.PrimaryAdmin())
	assert.Equal(t, 24*time.Hour, cfg.PollExpiration)
	assert.Equal(t, 30*time.Second, cfg.TestPollExpiration)
	assert.Equal(t, 5, cfg.ExpireMaxAttempts)
}

func TestFromLookupAliasesAndOverrides(t *testing.T) {
	env := baseEnv()
	delete(env, "MONGODB_URI")
	delete(env, "MONGODB_DB")
	env["MONGO_URI"] = "mongodb://db:27017"
	env["MONGO_DB"] = "polls"
	env["POLL_EXPIRATION"] = "5m"
	env["EXPIRE_MAX_ATTEMPTS"] = "2"

	cfg, err := FromLookup(lookupFrom(env))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.MongoURI)
	assert.Equal(t, "polls", cfg.MongoDB)
	assert.Equal(t, 5*time.Minute, cfg.PollExpiration)
	assert.Equal(t, 2, cfg.ExpireMaxAttempts)
}

func TestFromLookupMissingRequired(t *testing.T) {
	for _, key := range []string{"BOT_TOKEN", "MONGODB_URI", "MONGODB_DB", "ADMIN_CHAT_ID"} {
		env := baseEnv()
		delete(env, key)

		_, err := FromLookup(lookupFrom(env))

		var cfgErr Error
		require.ErrorAs(t, err, &cfgErr, key)
		assert.Equal(t, key, cfgErr.Field)
	}
}

func TestFromLookupInvalidValues(t *testing.T) {
	cases := map[string]string{
		"ADMIN_CHAT_ID":       "admin",
		"POLL_EXPIRATION":     "soon",
		"EXPIRE_MAX_ATTEMPTS": "0",
	}

	for key, value := range cases {
		env := baseEnv()
		env[key] = value

		_, err := FromLookup(lookupFrom(env))

		var cfgErr Error
		require.ErrorAs(t, err, &cfgErr, key)
		assert.Equal(t, key, cfgErr.Field)
	}

	env := baseEnv()
	env["ADMIN_CHAT_ID"] = " , "
	_, err := FromLookup(lookupFrom(env))
	assert.Error(t, err)
}
