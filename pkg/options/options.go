// Package options holds the typed runtime option set of a hub client.
//
// Options are addressed by name through Set, mirroring the string-keyed
// option table hosts are used to, but are validated at set time into a
// typed Options value. The client applies a staged Options value at the
// start of the next DoWork call.
package options

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Option names accepted by Set.
const (
	Timeout           = "timeout"
	MessageTimeout    = "messageTimeout"
	KeepAlive         = "keepalive"
	SASTokenLifetime  = "sas_token_lifetime"
	RetryInterval     = "retry_interval_sec"
	RetryMaxDelay     = "retry_max_delay_secs"
	ProductInfo       = "product_info"
	LogTrace          = "logtrace"
	BlobUploadTimeout = "blob_upload_timeout_secs"
	DoWorkFrequency   = "do_work_freq_ms"
)

// Default values.
const (
	DefaultKeepAlive        = 240 * time.Second
	DefaultSASTokenLifetime = time.Hour
	DefaultRetryInterval    = 5 * time.Second
	DefaultRetryMaxDelay    = 60 * time.Second
	DefaultDoWorkFrequency  = 100 * time.Millisecond

	// MaxDoWorkFrequency is the slowest loop period a host may configure.
	MaxDoWorkFrequency = 100 * time.Millisecond
)

// Option errors.
var (
	ErrUnknownOption = errors.New("unknown option")
	ErrInvalidValue  = errors.New("invalid option value")
)

// Options is the typed option set.
type Options struct {
	// MessageTimeout bounds how long a queued operation may wait for its
	// acknowledgement. Zero disables the timeout.
	MessageTimeout time.Duration

	// KeepAlive is the MQTT keepalive interval forwarded to the transport.
	KeepAlive time.Duration

	// SASTokenLifetime is the lifetime of generated SAS tokens.
	SASTokenLifetime time.Duration

	// RetryInterval is the base delay for the interval and linear policies.
	RetryInterval time.Duration

	// RetryMaxDelay caps backoff delays.
	RetryMaxDelay time.Duration

	// ProductInfo is appended to the user agent.
	ProductInfo string

	// LogTrace enables protocol event capture.
	LogTrace bool

	// BlobUploadTimeout bounds the wait for an upload block acknowledgement.
	// Zero disables the timeout.
	BlobUploadTimeout time.Duration

	// DoWorkFrequency is the advisory loop period for hosts.
	DoWorkFrequency time.Duration
}

// Default returns the default option set.
func Default() Options {
	return Options{
		KeepAlive:        DefaultKeepAlive,
		SASTokenLifetime: DefaultSASTokenLifetime,
		RetryInterval:    DefaultRetryInterval,
		RetryMaxDelay:    DefaultRetryMaxDelay,
		DoWorkFrequency:  DefaultDoWorkFrequency,
	}
}

// Set validates value and stores it under name.
func (o *Options) Set(name string, value any) error {
	switch name {
	case Timeout, MessageTimeout:
		d, err := duration(name, value, time.Millisecond)
		if err != nil {
			return err
		}
		o.MessageTimeout = d
	case KeepAlive:
		d, err := positiveDuration(name, value, time.Second)
		if err != nil {
			return err
		}
		o.KeepAlive = d
	case SASTokenLifetime:
		d, err := positiveDuration(name, value, time.Second)
		if err != nil {
			return err
		}
		o.SASTokenLifetime = d
	case RetryInterval:
		d, err := positiveDuration(name, value, time.Second)
		if err != nil {
			return err
		}
		o.RetryInterval = d
	case RetryMaxDelay:
		d, err := positiveDuration(name, value, time.Second)
		if err != nil {
			return err
		}
		o.RetryMaxDelay = d
	case ProductInfo:
		s, ok := value.(string)
		if !ok {
			return invalid(name, value)
		}
		o.ProductInfo = s
	case LogTrace:
		b, ok := value.(bool)
		if !ok {
			return invalid(name, value)
		}
		o.LogTrace = b
	case BlobUploadTimeout:
		d, err := duration(name, value, time.Second)
		if err != nil {
			return err
		}
		o.BlobUploadTimeout = d
	case DoWorkFrequency:
		d, err := positiveDuration(name, value, time.Millisecond)
		if err != nil {
			return err
		}
		if d > MaxDoWorkFrequency {
			return fmt.Errorf("%w: %s must not exceed %v", ErrInvalidValue, name, MaxDoWorkFrequency)
		}
		o.DoWorkFrequency = d
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	return nil
}

// Load parses a YAML mapping of option names to values on top of the defaults.
func Load(data []byte) (Options, error) {
	opts := Default()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return opts, fmt.Errorf("failed to parse options: %w", err)
	}

	// Deterministic order so the first invalid entry is always the one reported.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := opts.Set(name, raw[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return opts, errors.Join(errs...)
}

// LoadFile reads options from a YAML file.
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the host configuration
	if err != nil {
		return Default(), fmt.Errorf("failed to read options file: %w", err)
	}
	return Load(data)
}

func positiveDuration(name string, value any, unit time.Duration) (time.Duration, error) {
	d, err := duration(name, value, unit)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidValue, name)
	}
	return d, nil
}

// duration accepts a time.Duration, a duration string, or an integer count of unit.
func duration(name string, value any, unit time.Duration) (time.Duration, error) {
	var n int64
	switch v := value.(type) {
	case time.Duration:
		if v < 0 {
			return 0, invalid(name, value)
		}
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return 0, invalid(name, value)
		}
		return d, nil
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, invalid(name, value)
		}
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, invalid(name, value)
		}
		n = int64(v)
	default:
		return 0, invalid(name, value)
	}
	if n < 0 || n > math.MaxInt64/int64(unit) {
		return 0, invalid(name, value)
	}
	return time.Duration(n) * unit, nil
}

func invalid(name string, value any) error {
	return fmt.Errorf("%w: %s=%v (%T)", ErrInvalidValue, name, value, value)
}
