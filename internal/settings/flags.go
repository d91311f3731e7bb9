package settings

import (
	"flag"
	"os"
)

// Resolve parses args with fs and returns the layered settings. The -config
// and -env flags name the YAML and .env files; every other flag overrides the
// value from the file and environment only when given explicitly.
func Resolve(fs *flag.FlagSet, args []string) (Settings, error) {
	s := Default()
	var (
		configPath = fs.String("config", "", "YAML settings file")
		envPath    = fs.String("env", ".env", "dotenv file loaded before reading UIMP_* variables")

		listen    = fs.String("listen", s.Listen, "HTTP listen address")
		redisAddr = fs.String("redis", s.Redis.Addr, "Redis address (empty starts an embedded in-memory Redis)")
		driver    = fs.String("users", s.Users.Driver, "user store driver: memory or sqlite")
		seed      = fs.String("users-seed", "", "YAML user seed for the memory driver")
		dbPath    = fs.String("db", s.Users.SQLitePath, "SQLite database path for the sqlite driver")
		routes    = fs.String("routes", "", "YAML route table (default: built-in)")
		mode      = fs.String("mode", s.Auth.ValidationMode, "token validation mode: strict or jwt-only")
		logLevel  = fs.String("log-level", s.Log.Level, "log level: debug, info, warn, error")
		logFormat = fs.String("log-format", s.Log.Format, "log format: text or json")
		insecure  = fs.Bool("insecure-cookie", false, "send the session cookie over plain HTTP")
	)
	if err := fs.Parse(args); err != nil {
		return Settings{}, err
	}

	if err := LoadDotEnv(*envPath); err != nil {
		return Settings{}, err
	}
	if *configPath != "" {
		if err := s.LoadFile(*configPath); err != nil {
			return Settings{}, err
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			s.Listen = *listen
		case "redis":
			s.Redis.Addr = *redisAddr
		case "users":
			s.Users.Driver = *driver
		case "users-seed":
			s.Users.SeedFile = *seed
		case "db":
			s.Users.SQLitePath = *dbPath
		case "routes":
			s.RoutesFile = *routes
		case "mode":
			s.Auth.ValidationMode = *mode
		case "log-level":
			s.Log.Level = *logLevel
		case "log-format":
			s.Log.Format = *logFormat
		case "insecure-cookie":
			s.Auth.CookieSecure = !*insecure
		}
	})

	return s, s.Validate()
}
