// Package config handles loading and validating the mapper configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading .env files into the environment
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The Home Assistant token and the JWT secret should be set via
//     environment variables (HA_TOKEN, IPMAP_JWT_SECRET)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	_ = config.LoadEnvFile(".env")
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.HomeAssistant.URL)
package config
