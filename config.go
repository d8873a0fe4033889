package mindb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CachePolicy selects the buffer manager's eviction discipline.
type CachePolicy string

const (
	PolicyLRU  CachePolicy = "LRU"
	PolicyFIFO CachePolicy = "FIFO"
)

// Config mirrors the nanodb.* configuration properties of spec.md §6,
// renamed to this module's mindb.* namespace. Loaded from YAML (the
// teacher's server config loader does the analogous job for
// cmd/mindb-server) with defaults applied for anything the file omits.
type Config struct {
	PageSize              int         `yaml:"pageSize"`
	PageCacheSize         int64       `yaml:"pagecacheSize"`
	PageCachePolicy       CachePolicy `yaml:"pagecachePolicy"`
	BaseDirectory         string      `yaml:"baseDirectory"`
	CreateIndexesOnKeys   bool        `yaml:"createIndexesOnKeys"`
	EnforceKeyConstraints bool        `yaml:"enforceKeyConstraints"`
	EnableTransactions    bool        `yaml:"enableTransactions"`
	EnableIndexes         bool        `yaml:"enableIndexes"`
	JoinCostWeight        float64     `yaml:"joinCostWeight"`
}

// DefaultConfig returns the configuration spec.md §6 lists as defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:              8192,
		PageCacheSize:         64 * 1024 * 1024,
		PageCachePolicy:       PolicyLRU,
		BaseDirectory:         "./data",
		CreateIndexesOnKeys:   true,
		EnforceKeyConstraints: true,
		EnableTransactions:    false,
		EnableIndexes:         true,
		JoinCostWeight:        1.0,
	}
}

// LoadConfig reads a YAML config file, applying DefaultConfig for any
// field the file doesn't set.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, WrapError(KindFileSystem, err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, WrapError(KindDataFormat, err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces spec.md §6's page-size power-of-two-in-range invariant
// and the minimum cache size.
func (c *Config) Validate() error {
	if c.PageSize < 512 || c.PageSize > 65536 || c.PageSize&(c.PageSize-1) != 0 {
		return NewError(KindDataFormat, "pageSize %d must be a power of two in [512, 65536]", c.PageSize)
	}
	if c.PageCacheSize < int64(c.PageSize)*4 {
		return NewError(KindDataFormat, "pagecacheSize %d too small for pageSize %d", c.PageCacheSize, c.PageSize)
	}
	if c.PageCachePolicy != PolicyLRU && c.PageCachePolicy != PolicyFIFO {
		return NewError(KindDataFormat, "pagecachePolicy %q must be LRU or FIFO", c.PageCachePolicy)
	}
	return nil
}

// Set applies a `SET propertyName = value` command (spec.md §6/§4.8) to
// the running configuration. Values are parsed per the destination
// field's static type.
func (c *Config) Set(property, value string) error {
	switch property {
	case "mindb.pagecache.policy":
		p := CachePolicy(value)
		if p != PolicyLRU && p != PolicyFIFO {
			return NewError(KindInvalidSQL, "unknown cache policy %q", value)
		}
		c.PageCachePolicy = p
	case "mindb.createIndexesOnKeys":
		c.CreateIndexesOnKeys = value == "true"
	case "mindb.enforceKeyConstraints":
		c.EnforceKeyConstraints = value == "true"
	case "mindb.enableIndexes":
		c.EnableIndexes = value == "true"
	default:
		return NewError(KindInvalidSQL, "unknown or immutable property %q", property)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("mindb.baseDirectory=%s mindb.pageSize=%d mindb.pagecache.size=%d mindb.pagecache.policy=%s",
		c.BaseDirectory, c.PageSize, c.PageCacheSize, c.PageCachePolicy)
}
