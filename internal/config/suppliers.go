package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	SupplierBoardsAndMore = "bam"
	SupplierNeilPryde     = "pryde"
)

const (
	FeedFormatBoardsAndMore = "boards_and_more"
	FeedFormatNeilPryde     = "neil_pryde"
)

// SupplierConfig describes one supplier stock feed.
type SupplierConfig struct {
	Key      string   `mapstructure:"key"`
	Enabled  bool     `mapstructure:"enabled"`
	Format   string   `mapstructure:"format"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Path     string   `mapstructure:"path"`
	Brands   []string `mapstructure:"brands"`
}

func (s SupplierConfig) Address() string {
	port := s.Port
	if port <= 0 {
		port = 21
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

type SuppliersConfig struct {
	Suppliers []SupplierConfig `mapstructure:"suppliers"`
}

func (c SuppliersConfig) Find(key string) (SupplierConfig, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range c.Suppliers {
		if s.Key == key {
			return s, true
		}
	}
	return SupplierConfig{}, false
}

func DefaultSuppliersConfig() SuppliersConfig {
	return SuppliersConfig{
		Suppliers: []SupplierConfig{
			{
				Key:     SupplierBoardsAndMore,
				Enabled: true,
				Format:  FeedFormatBoardsAndMore,
				Host:    "hookipa.boards-and-more.com",
				Port:    21,
				Path:    "availableQuantities_INT.csv",
			},
			{
				Key:     SupplierNeilPryde,
				Enabled: true,
				Format:  FeedFormatNeilPryde,
				Host:    "mail.neilpryde.de",
				Port:    21,
				Path:    "Reseller/stockinfo/stockinfo_summer_csv.csv",
				Brands: []string{
					"Neil Pryde", "Neil Pryde Foil", "Neil Pryde Wing", "NP",
					"Cabrinha", "JP", "JP SUP", "JP Wingboard",
				},
			},
		},
	}
}

type SupplierConfigHolder struct {
	current atomic.Value // holds SuppliersConfig
}

// NewSupplierConfigHolder reads suppliers.yml and keeps it current on change.
// Credentials may also come from SUPPLIERS_<KEY>_USERNAME / _PASSWORD.
func NewSupplierConfigHolder() (*SupplierConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("suppliers")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/storefront")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	cfg, err := decodeSuppliers(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSupplierConfigHolder(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeSuppliers(v)
			if err != nil {
				log.Printf("[suppliers-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[suppliers-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticSupplierConfigHolder wraps a fixed configuration.
func NewStaticSupplierConfigHolder(cfg SuppliersConfig) *SupplierConfigHolder {
	holder := &SupplierConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *SupplierConfigHolder) Get() SuppliersConfig {
	return h.current.Load().(SuppliersConfig)
}

func decodeSuppliers(v *viper.Viper) (SuppliersConfig, error) {
	cfg := DefaultSuppliersConfig()
	if v.IsSet("suppliers") {
		cfg = SuppliersConfig{}
		if err := v.Unmarshal(&cfg); err != nil {
			return SuppliersConfig{}, err
		}
	}
	for i := range cfg.Suppliers {
		s := &cfg.Suppliers[i]
		s.Key = strings.ToLower(strings.TrimSpace(s.Key))
		prefix := "suppliers_" + s.Key
		if u := v.GetString(prefix + "_username"); u != "" {
			s.Username = u
		}
		if p := v.GetString(prefix + "_password"); p != "" {
			s.Password = p
		}
	}
	if err := validateSuppliersConfig(cfg); err != nil {
		return SuppliersConfig{}, err
	}
	return cfg, nil
}

func validateSuppliersConfig(cfg SuppliersConfig) error {
	seen := make(map[string]struct{}, len(cfg.Suppliers))
	for _, s := range cfg.Suppliers {
		if s.Key == "" {
			return errors.New("suppliers.key cannot be empty")
		}
		if _, ok := seen[s.Key]; ok {
			return fmt.Errorf("suppliers.key %q is duplicated", s.Key)
		}
		seen[s.Key] = struct{}{}
		switch s.Format {
		case FeedFormatBoardsAndMore, FeedFormatNeilPryde:
		default:
			return fmt.Errorf("suppliers[%s].format %q is not supported", s.Key, s.Format)
		}
		if strings.TrimSpace(s.Host) == "" || strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("suppliers[%s] requires host and path", s.Key)
		}
	}
	return nil
}
