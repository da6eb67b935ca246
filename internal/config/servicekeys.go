package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	pkgconfig "notification-pipeline/pkg/config"
)

// ServiceKeys maps a calling service name to the key it must present in
// X-Service-Key. It is loaded once at start and handed to auth.Middleware.
type ServiceKeys map[string]string

// serviceKeysFile is the YAML layout of SERVICE_KEYS_FILE:
//
//	service_keys:
//	  email_service: "..."
//	  push_service: "..."
type serviceKeysFile struct {
	ServiceKeys map[string]string `yaml:"service_keys"`
}

// LoadServiceKeysFile reads a service key table from a YAML file.
// The path parameter is expected to come from a trusted source (environment or hardcoded default).
func LoadServiceKeysFile(path string) (ServiceKeys, error) {
	// #nosec G304 -- path is provided by trusted source (environment), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service keys file: %w", err)
	}

	var file serviceKeysFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse service keys file: %w", err)
	}

	keys := ServiceKeys{}
	for name, key := range file.ServiceKeys {
		keys[strings.TrimSpace(name)] = strings.TrimSpace(key)
	}
	return keys, nil
}

// LoadServiceKeys builds the key table from SERVICE_KEYS_FILE and then
// SERVICE_KEYS ("name:key,name:key"). Entries from SERVICE_KEYS win.
func LoadServiceKeys() (ServiceKeys, error) {
	keys := ServiceKeys{}

	if path := pkgconfig.GetEnvString("SERVICE_KEYS_FILE", ""); path != "" {
		fromFile, err := LoadServiceKeysFile(path)
		if err != nil {
			return nil, err
		}
		for name, key := range fromFile {
			keys[name] = key
		}
	}
	for name, key := range pkgconfig.GetEnvStringMap("SERVICE_KEYS") {
		keys[name] = key
	}

	if err := keys.Validate(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Validate rejects an empty table and blank entries.
func (k ServiceKeys) Validate() error {
	if len(k) == 0 {
		return fmt.Errorf("no service keys configured (set SERVICE_KEYS or SERVICE_KEYS_FILE)")
	}
	for name, key := range k {
		if name == "" {
			return fmt.Errorf("service key entry with empty service name")
		}
		if key == "" {
			return fmt.Errorf("service %q has an empty key", name)
		}
	}
	return nil
}

// Names returns the configured service names, for startup logging.
func (k ServiceKeys) Names() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	return names
}
