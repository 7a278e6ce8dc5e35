package zmake

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Get returns the configured value for key, or fallback when unset.
func (c *Config) Get(key, fallback string) string {
	if v := c.Values[key]; v != "" {
		return v
	}
	return fallback
}

// LoadConfig merges defaults, the config file (explicit path or the first of
// /etc/zmake.{toml,yaml,yml,json} that exists) and ZMAKE_* env overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("root", "/")
	v.SetDefault("cache_dir", "/var/cache/zmake")
	v.SetDefault("cache_max_mb", 2048)
	v.SetDefault("tmpdir", os.TempDir())
	v.SetDefault("packager", "Unknown Packager")
	v.SetDefault("jobs", runtime.NumCPU())
	v.SetDefault("cflags", "-O2 -pipe -fPIC")
	v.SetDefault("cxxflags", "-O2 -pipe -fPIC")
	v.SetDefault("ldflags", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(err) {
				return nil, err
			}
		}
	} else {
		for _, ext := range []string{"toml", "yaml", "yml", "json"} {
			probe := "/etc/zmake." + ext
			if _, err := os.Stat(probe); err == nil {
				v.SetConfigFile(probe)
				if err := v.ReadInConfig(); err == nil {
					break
				}
			}
		}
	}

	v.SetEnvPrefix("ZMAKE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{Values: make(map[string]string)}
	for _, key := range []string{
		"root", "cache_dir", "cache_max_mb", "tmpdir", "debug", "packager",
		"jobs", "cflags", "cxxflags", "ldflags", "key_id", "key_dir",
		"s3_endpoint", "s3_account_id", "s3_access_key", "s3_secret_key", "s3_bucket",
	} {
		cfg.Values[key] = v.GetString(key)
	}

	return cfg, nil
}

// InitConfig applies the loaded configuration to the package globals.
func InitConfig(cfg *Config) {
	rootDir = cfg.Get("root", "/")

	CacheDir = cfg.Get("cache_dir", "/var/cache/zmake")
	CacheStore = filepath.Join(CacheDir, "builds")

	tmpDir = cfg.Get("tmpdir", os.TempDir())

	Installed = filepath.Join(rootDir, "var/db/zmake/installed")

	KeyDir = cfg.Get("key_dir", "/etc/zmake/keys")

	activeKeyID = cfg.Values["key_id"]

	Debug = cfg.Values["debug"] == "1" || strings.EqualFold(cfg.Values["debug"], "true")
}
