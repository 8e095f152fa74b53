// Package config loads, validates and watches the mug server configuration.
//
// Configuration is YAML. Environment variables are substituted before
// parsing using ${VAR} or ${VAR:-default}; "$$" yields a literal dollar.
// Omitted settings keep the values from DefaultConfig.
//
//	cfg, err := config.LoadConfig("mug.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// Reloader keeps a running process in step with the file. Each changed,
// valid configuration is passed to an apply function; if apply fails the
// previous configuration stays current.
package config
