// Package validation checks client configuration and per-request options
// before anything touches the network.
//
// Struct tag validation covers configuration records:
//
//	type Config struct {
//	    PoolSize int `mapstructure:"pool_size" validate:"gte=1"`
//	}
//	err := validation.Validate(cfg)
//
// The programmatic Validator covers values assembled at call time:
//
//	v := validation.New()
//	v.URL("url", rawURL, "http", "https").HeaderName("headers", name)
//	err := v.Validate()
//
// Both report failures as INVALID_ARGUMENT errors listing every bad field.
package validation
