// ABOUTME: Command-line overrides layered on top of a loaded Config
// ABOUTME: Only fields explicitly set on the command line replace file values

package config

// Overrides carries values given on the command line. Nil fields are unset.
type Overrides struct {
	Host          *string
	Port          *int
	RecvSize      *int
	ListenBacklog *int
	BindRetry     *int
	DatabasePath  *string
	LogLevel      *string
}

// Apply returns a copy of cfg with the overrides applied and validated.
func (o Overrides) Apply(cfg Config) (Config, error) {
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if o.RecvSize != nil {
		cfg.Server.RecvSize = *o.RecvSize
	}
	if o.ListenBacklog != nil {
		cfg.Server.ListenBacklog = *o.ListenBacklog
	}
	if o.BindRetry != nil {
		cfg.Server.BindRetry = *o.BindRetry
	}
	if o.DatabasePath != nil {
		cfg.Database.Path = *o.DatabasePath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	return cfg, cfg.Validate()
}
