package mcache

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the adapter settings, under a top-level
// "memcached" key:
//
//	memcached:
//	  persistentId: ""
//	  servers:
//	    - host: 127.0.0.1
//	      port: 11211
//	      weight: 1
//
// Servers stay untyped until ServerList validates them. JSON files decode too.
type Config struct {
	PersistentID string `yaml:"persistentId"`
	Servers      any    `yaml:"servers"`
}

type configFile struct {
	Memcached Config `yaml:"memcached"`
}

func DefaultConfig() Config {
	return Config{
		Servers: []any{map[string]any{
			"host":   DefaultServerHost,
			"port":   DefaultServerPort,
			"weight": DefaultServerWeight,
		}},
	}
}

// LoadConfig decodes a config document. Missing keys keep DefaultConfig values;
// an empty document yields DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	f := configFile{Memcached: DefaultConfig()}
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("mcache: decode config: %w", err)
	}
	return f.Memcached, nil
}

func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("mcache: open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// ServerList validates the configured servers. See ParseServers.
func (c Config) ServerList() ([]Server, error) {
	return ParseServers(c.Servers)
}

// ApplyConfig copies PersistentID and the validated server list into opts.
func ApplyConfig[V any](cfg Config, opts *Options[V]) error {
	servers, err := cfg.ServerList()
	if err != nil {
		return err
	}
	opts.PersistentID = cfg.PersistentID
	opts.Servers = servers
	return nil
}
