package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultYAML is the commented template written by `quotagate config init`.
const DefaultYAML = `# quotagate configuration
# Every key can be overridden with QUOTAGATE_<SECTION>_<KEY>, e.g.
# QUOTAGATE_SERVER_PORT=9090.

server:
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s
  cors_origins:
    - "*"
  max_body_size: 1048576
  rate_limit: 60        # requests per minute per IP on /authorize and /generate_image; 0 disables

session:
  backend: cookie       # cookie, sql, redis or memory
  cookie_name: credential
  secret: ""            # HMAC key for signed cookies; set via QUOTAGATE_SESSION_SECRET
  ttl: 0s               # 0s keeps the credential for the browser session
  secure: false         # set true behind TLS
  sql:
    driver: sqlite      # sqlite, postgres or mysql
    dsn: ""             # empty sqlite DSN uses <data_dir>/sessions.db
  redis:
    addr: 127.0.0.1:6379
    password: ""
    db: 0

# Key-management backend (Unkey-compatible)
keys:
  base_url: https://api.unkey.dev
  root_key: ""          # or UNKEY_ROOT_KEY
  api_id: ""            # or UNKEY_API_ID
  owner_id: superuser
  initial_quota: 10
  refill_amount: 10
  refill_interval: daily
  timeout: 5s

# Image generation backend (OpenAI-compatible)
images:
  base_url: https://api.openai.com
  api_key: ""           # or OPENAI_API_KEY
  model: ""
  size: 1024x1024
  timeout: 60s

log:
  level: info           # debug, info, warn, error
  format: text          # text or json

metrics:
  enabled: true
`

// WriteDefaultConfig writes DefaultYAML to path. It refuses to overwrite an
// existing file unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return os.WriteFile(path, []byte(DefaultYAML), 0600)
}

// secretKeys are masked by RenderSettings.
var secretKeys = map[string]bool{
	"root_key": true,
	"api_key":  true,
	"secret":   true,
	"password": true,
	"dsn":      true,
}

// RenderSettings renders a viper settings tree as YAML with secret values
// masked. Keys are emitted in sorted order so the output is stable.
func RenderSettings(settings map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(toNode(settings))
}

func toNode(settings map[string]interface{}) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		var valNode *yaml.Node
		switch v := settings[k].(type) {
		case map[string]interface{}:
			valNode = toNode(v)
		default:
			if secretKeys[k] {
				v = maskSecret(fmt.Sprint(v))
			}
			valNode = &yaml.Node{}
			if err := valNode.Encode(v); err != nil {
				valNode = &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(v)}
			}
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node
}

// maskSecret keeps a short prefix so operators can tell keys apart.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
