package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EffectiveConfigResult is the merged view of file, env and flags, with a
// provenance tag so startup logging can say where values came from.
type EffectiveConfigResult struct {
	Config Config
	Addr   string
	DBPath string
	Source string // "flags" | "env" | "config" | "defaults"
}

// ParseCommandFlags registers and parses the process flags. Returns the
// flag values plus a set recording which were explicitly provided.
func ParseCommandFlags() (addr, db, cfg string, set map[string]bool) {
	addrF := flag.String("addr", ":4024", "listen address")
	dbF := flag.String("db", "./data", "pebble database path")
	cfgF := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrF, *dbF, *cfgF, set
}

// ResolveConfigPath picks the config file path: explicit flag wins, then
// MESHNODE_CONFIG, then the default ./meshnode.yaml if it exists.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if p := os.Getenv("MESHNODE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("./meshnode.yaml"); err == nil {
		return "./meshnode.yaml"
	}
	return ""
}

// LoadEffective loads the YAML file (when present) and applies env
// overrides. Env wins over file; flags are applied by the caller and win
// over both.
func LoadEffective(path string) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	res.Source = "defaults"

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return res, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &res.Config); err != nil {
			return res, fmt.Errorf("parse config %s: %w", path, err)
		}
		res.Source = "config"
	}

	envUsed := applyEnv(&res.Config)
	if envUsed {
		res.Source = "env"
	}

	res.Addr = res.Config.Addr()
	res.DBPath = res.Config.Storage.DBPath
	if res.DBPath == "" {
		res.DBPath = "./data"
	}
	return res, nil
}

// applyEnv overlays MESHNODE_* env vars; returns true if any was set.
func applyEnv(c *Config) bool {
	used := false
	if v := os.Getenv("MESHNODE_ADDR"); v != "" {
		c.Server.Address = v
		used = true
	}
	if v := os.Getenv("MESHNODE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
			used = true
		}
	}
	if v := os.Getenv("MESHNODE_DB_PATH"); v != "" {
		c.Storage.DBPath = v
		used = true
	}
	if v := os.Getenv("MESHNODE_GATEWAY_URL"); v != "" {
		c.Resolver.GatewayURL = v
		used = true
	}
	if v := os.Getenv("MESHNODE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
		used = true
	}
	return used
}
