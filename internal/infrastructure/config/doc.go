// Package config handles loading and validating emulator configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Every optional integration (MQTT, InfluxDB, admin API) is disabled by
// default, so the emulator runs stand-alone with an empty or missing file.
//
// Usage:
//
//	cfg, err := config.LoadOrDefault(config.DefaultPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Devices.Instrument.Port)
package config
