package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Limits on what the loader accepts. A station config is a handful of scalars and
// one TLS block, so anything near these is a mistake rather than a real document.
const (
	maxConfigSize = 256 << 10
	maxDocDepth   = 16
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// envRules holds the extra checks for variables whose values end up on the wire
// or in the NATS connection. Every variable also gets checkEnvValue.
var envRules = map[string]func(string) error{
	EnvSimulationID:          checkIdentifier,
	EnvComponentName:         checkIdentifier,
	EnvStationID:             checkIdentifier,
	EnvStationStateTopic:     checkSubject,
	EnvPowerOutputTopic:      checkSubject,
	EnvPowerRequirementTopic: checkSubject,
	EnvNATSURL:               checkServerURLs,
}

// validateConfigPath rejects paths with parent references and files that are not
// JSON or YAML.
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	}
	if formatOf(path) == formatUnknown {
		return fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}
	return nil
}

// safeReadFile reads a regular file of at most maxConfigSize bytes.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// validateEnvVar checks an environment value before it overrides the config.
func validateEnvVar(key, value string) error {
	if value == "" {
		return nil
	}
	if err := checkEnvValue(value); err != nil {
		return fmt.Errorf("environment variable %s: %w", key, err)
	}
	if rule, ok := envRules[key]; ok {
		if err := rule(value); err != nil {
			return fmt.Errorf("environment variable %s: %w", key, err)
		}
	}
	return nil
}

func checkEnvValue(value string) error {
	switch {
	case len(value) > maxEnvVarLen:
		return fmt.Errorf("too long: %d > %d", len(value), maxEnvVarLen)
	case strings.ContainsRune(value, 0):
		return errors.New("null byte in value")
	case !utf8.ValidString(value):
		return errors.New("not valid UTF-8")
	}
	return nil
}

// checkIdentifier accepts values that are copied verbatim into message envelopes.
func checkIdentifier(value string) error {
	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Errorf("control character %U in identifier", r)
		}
	}
	return nil
}

// checkSubject accepts literal NATS subjects: dot-separated, non-empty tokens with
// no whitespace and no wildcards, since the station publishes to them.
func checkSubject(value string) error {
	for _, token := range strings.Split(value, ".") {
		switch {
		case token == "":
			return fmt.Errorf("empty token in subject %q", value)
		case token == "*" || token == ">":
			return fmt.Errorf("wildcard in subject %q", value)
		case strings.IndexFunc(token, unicode.IsSpace) >= 0:
			return fmt.Errorf("whitespace in subject %q", value)
		}
	}
	return nil
}

// checkServerURLs accepts a comma-separated server list. Entries without a scheme
// are left to the NATS client, which assumes nats://.
func checkServerURLs(value string) error {
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return fmt.Errorf("empty server in %q", value)
		}
		if !strings.Contains(entry, "://") {
			continue
		}
		u, err := url.Parse(entry)
		if err != nil {
			return fmt.Errorf("invalid server URL: %w", err)
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			return fmt.Errorf("unsupported server scheme %q", u.Scheme)
		}
	}
	return nil
}

// jsonDepth returns the deepest object or array nesting in data, stopping early
// once maxDocDepth is exceeded.
func jsonDepth(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth, deepest := 0, 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return deepest, err
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch delim {
		case '{', '[':
			depth++
			if depth > deepest {
				deepest = depth
			}
			if deepest > maxDocDepth {
				return deepest, nil
			}
		default:
			depth--
		}
	}
	if depth != 0 {
		return deepest, fmt.Errorf("malformed JSON: %d unclosed brackets", depth)
	}
	return deepest, nil
}

// yamlDepth returns the deepest mapping or sequence nesting under node. Aliases are
// not followed.
func yamlDepth(node *yaml.Node) int {
	if node == nil {
		return 0
	}
	deepest := 0
	for _, child := range node.Content {
		if d := yamlDepth(child); d > deepest {
			deepest = d
		}
	}
	if node.Kind == yaml.MappingNode || node.Kind == yaml.SequenceNode {
		deepest++
	}
	return deepest
}

func checkDepth(depth int) error {
	if depth > maxDocDepth {
		return fmt.Errorf("nesting too deep: %d > %d", depth, maxDocDepth)
	}
	return nil
}
