package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FeeSchedule holds the platform-wide fee defaults. Organizations may carry
// their own overrides; a zero value on the organization falls back to these.
type FeeSchedule struct {
	PlatformFeePercentage float64 `mapstructure:"platformFeePercentage"`
	PlatformFeeFixed      float64 `mapstructure:"platformFeeFixed"`

	InstantPayoutFeePercentage float64 `mapstructure:"instantPayoutFeePercentage"`
	MarkupFeePercentage        float64 `mapstructure:"markupFeePercentage"`
	MarkupFeeFixed             float64 `mapstructure:"markupFeeFixed"`

	MinimumPaymentAmount float64 `mapstructure:"minimumPaymentAmount"`
	MinimumNetPayout     float64 `mapstructure:"minimumNetPayout"`
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		PlatformFeePercentage:      3.50,
		PlatformFeeFixed:           0.30,
		InstantPayoutFeePercentage: 1.50,
		MarkupFeePercentage:        1.00,
		MarkupFeeFixed:             0.25,
		MinimumPaymentAmount:       0.50,
		MinimumNetPayout:           0.01,
	}
}

// FeeScheduleHolder exposes the current fee schedule and hot-reloads it when
// the config file changes on disk.
type FeeScheduleHolder struct {
	current atomic.Value // holds FeeSchedule
}

func NewFeeScheduleHolder() (*FeeScheduleHolder, error) {
	v := viper.New()

	v.SetConfigName("fees")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/connectpay/config")
	v.AddConfigPath("/etc/connectpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONNECTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeeSchedule()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("fees.platformFeePercentage", defaults.PlatformFeePercentage)
		v.SetDefault("fees.platformFeeFixed", defaults.PlatformFeeFixed)
		v.SetDefault("fees.instantPayoutFeePercentage", defaults.InstantPayoutFeePercentage)
		v.SetDefault("fees.markupFeePercentage", defaults.MarkupFeePercentage)
		v.SetDefault("fees.markupFeeFixed", defaults.MarkupFeeFixed)
		v.SetDefault("fees.minimumPaymentAmount", defaults.MinimumPaymentAmount)
		v.SetDefault("fees.minimumNetPayout", defaults.MinimumNetPayout)
	}

	var schedule FeeSchedule
	if err := v.UnmarshalKey("fees", &schedule); err != nil {
		return nil, err
	}
	if err := validateFeeSchedule(schedule); err != nil {
		return nil, err
	}

	holder := &FeeScheduleHolder{}
	holder.current.Store(schedule)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeeSchedule
		if err := v.UnmarshalKey("fees", &updated); err != nil {
			log.Printf("[fee-schedule] reload failed: %v", err)
			return
		}
		if err := validateFeeSchedule(updated); err != nil {
			log.Printf("[fee-schedule] invalid schedule ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticFeeScheduleHolder returns a holder pinned to the given schedule,
// with no file watching. Intended for tests.
func NewStaticFeeScheduleHolder(schedule FeeSchedule) *FeeScheduleHolder {
	holder := &FeeScheduleHolder{}
	holder.current.Store(schedule)
	return holder
}

func (h *FeeScheduleHolder) Current() FeeSchedule {
	if h == nil {
		return DefaultFeeSchedule()
	}
	if v, ok := h.current.Load().(FeeSchedule); ok {
		return v
	}
	return DefaultFeeSchedule()
}

func validateFeeSchedule(s FeeSchedule) error {
	if s.PlatformFeePercentage < 0 || s.PlatformFeePercentage >= 100 {
		return errors.New("platformFeePercentage out of range")
	}
	if s.PlatformFeeFixed < 0 {
		return errors.New("platformFeeFixed must be non-negative")
	}
	if s.InstantPayoutFeePercentage < 0 || s.InstantPayoutFeePercentage >= 100 {
		return errors.New("instantPayoutFeePercentage out of range")
	}
	if s.MarkupFeePercentage < 0 || s.MarkupFeePercentage >= 100 {
		return errors.New("markupFeePercentage out of range")
	}
	if s.MarkupFeeFixed < 0 {
		return errors.New("markupFeeFixed must be non-negative")
	}
	if s.MinimumPaymentAmount < 0 {
		return errors.New("minimumPaymentAmount must be non-negative")
	}
	if s.MinimumNetPayout <= 0 {
		return errors.New("minimumNetPayout must be positive")
	}
	return nil
}
