package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. The types reflect how the values are used
// in the application: strings for identifiers and secrets, durations
// for windows and TTLs.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	SessionWindow time.Duration // sliding session expiration window
	BcryptCost    int           // bcrypt cost for password and client-secret hashing

	// OAuth state codec. SELF_ORIGIN identifies this authorization
	// server inside signed state tokens; STATE_KEYS is a
	// comma-separated rotation list, newest first — the first key
	// signs, every key verifies.
	SelfOrigin string        // public origin of this portal
	StateKeys  [][]byte      // HMAC keys for the state codec
	StateTTL   time.Duration // validity of an in-flight handshake

	AccessTokenTTL time.Duration // validity of provider-role access tokens

	// Client role against the remote social-gaming provider.
	TwinoidClientID     string
	TwinoidClientSecret string
	TwinoidAuthorizeURL string
	TwinoidTokenURL     string
	TwinoidUserInfoURL  string
	TwinoidCallbackURL  string
	TwinoidScopes       []string
}

// Load reads configuration values from environment variables and
// returns a Config. Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		SessionWindow: envDur("SESSION_WINDOW", 30*24*time.Hour),
		BcryptCost:    mustInt("BCRYPT_COST"),

		SelfOrigin: must("SELF_ORIGIN"),
		StateKeys:  mustKeys("STATE_KEYS"),
		StateTTL:   envDur("STATE_TTL", 15*time.Minute),

		AccessTokenTTL: envDur("ACCESS_TOKEN_TTL", time.Hour),

		TwinoidClientID:     must("TWINOID_CLIENT_ID"),
		TwinoidClientSecret: must("TWINOID_CLIENT_SECRET"),
		TwinoidAuthorizeURL: envStr("TWINOID_AUTHORIZE_URL", "https://twinoid.com/oauth/auth"),
		TwinoidTokenURL:     envStr("TWINOID_TOKEN_URL", "https://twinoid.com/oauth/token"),
		TwinoidUserInfoURL:  envStr("TWINOID_USERINFO_URL", "https://twinoid.com/graph/me"),
		TwinoidCallbackURL:  must("TWINOID_CALLBACK_URL"),
		TwinoidScopes:       envCSV("TWINOID_SCOPES", []string{"contacts"}),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and
// exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an
// integer. If conversion fails, the application logs a fatal error and
// exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// mustKeys parses a required comma-separated secret list into byte
// keys, newest first.
func mustKeys(key string) [][]byte {
	var out [][]byte
	for _, part := range strings.Split(must(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, []byte(part))
	}
	if len(out) == 0 {
		log.Fatalf("no usable keys in env var %s", key)
	}
	return out
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envCSV(k string, d []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return d
	}
	return out
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
		return dur
	}
	return d
}
