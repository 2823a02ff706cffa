package cfg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

func newConfig() *Config {
	return &Config{}
}

// LoadFromFile loads the configuration from a YAML or TOML file, depending on its extension
func LoadFromFile(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		return LoadTOML(file)
	case ".yaml", ".yml", "":
		return LoadYAML(file)
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", filepath.Ext(filename))
	}
}

// LoadYAML loads and validates a configuration in YAML
func LoadYAML(reader io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	config := newConfig()
	err := decoder.Decode(config)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("cannot decode configuration: %w", err)
	}
	return finish(config)
}

// LoadTOML loads and validates a configuration in TOML
func LoadTOML(reader io.Reader) (*Config, error) {
	config := newConfig()
	metadata, err := toml.NewDecoder(reader).Decode(config)
	if err != nil {
		return nil, fmt.Errorf("cannot decode configuration: %w", err)
	}
	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown configuration key %q", undecoded[0].String())
	}
	return finish(config)
}

func finish(config *Config) (*Config, error) {
	expandPaths(config)
	err := Validate(config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func expandPaths(config *Config) {
	if config.Vault != nil {
		config.Vault.Path = expandPath(config.Vault.Path)
	}
	for name, account := range config.Accounts {
		account.Read.Root = expandPath(account.Read.Root)
		account.Read.Database = expandPath(account.Read.Database)
		if account.Index != nil {
			account.Index.Root = expandPath(account.Index.Root)
			account.Index.Database = expandPath(account.Index.Database)
		}
		account.Credential.File = expandPath(account.Credential.File)
		if account.PGP != nil {
			for i, key := range account.PGP.PublicKeys {
				account.PGP.PublicKeys[i] = expandPath(key)
			}
			account.PGP.SecretKey = expandPath(account.PGP.SecretKey)
			account.PGP.Passphrase.File = expandPath(account.PGP.Passphrase.File)
		}
		config.Accounts[name] = account
	}
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
