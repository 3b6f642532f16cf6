package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration at the given path into conf.
//
// Unknown fields are rejected. If expandEnv is set, references to $VAR or
// ${VAR} in the file are replaced with the corresponding environment
// variable, where a default may be given with ${VAR:default}.
func Load(path string, conf interface{}, expandEnv bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %s: %w", path, err)
	}

	if expandEnv {
		buf = expand(buf)
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}

	return nil
}

var defaultRe = regexp.MustCompile(`^(.+?):(.+)$`)

func expand(b []byte) []byte {
	return []byte(os.Expand(string(b), func(name string) string {
		m := defaultRe.FindStringSubmatch(name)
		if m == nil {
			return os.Getenv(name)
		}
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	}))
}
