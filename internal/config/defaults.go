package config

// DefaultConfigYAML is written by `gate init`. It documents every section
// with its default value.
const DefaultConfigYAML = `# Stability gate configuration
#
# Values not specified here use the defaults shown.

log:
  level: info    # debug, info, warn, error
  format: auto   # auto, text, json

# Admission policy applied to every evaluation.
policy:
  min_confidence: 0.6
  num_samples: 5
  # Reject regardless of score when a divergence of the category reaches
  # the severity. Use "*" to match every category.
  # hard_reject:
  #   - category: security-parameter
  #     severity: high
  # Override the default severity of a category.
  # severity_overrides:
  #   style: medium

# Penalty weight of a perfectly even divergence, per severity.
scoring:
  weights:
    low: 0.08
    medium: 0.20
    high: 0.40

clustering:
  strategy: greedy     # greedy, components
  scan_mode: members   # members, representatives

oracle:
  type: keyword        # exact, keyword, embedding
  keyword_threshold: 0.75
  embedding_threshold: 0.92
  embedding_model: text-embedding-3-small
  timeout: 30s
  max_retries: 3

extraction:
  disabled: []
  # custom:
  #   - name: password_hash_cost
  #     category: security-parameter
  #     patterns:
  #       - '(?i)bcrypt\.GenerateFromPassword\([^,]+,\s*(\d+)\)'

# Provider used by review, batch and compare. The API key is read from
# GATE_GENERATION_API_KEY or OPENAI_API_KEY.
generation:
  provider: openai
  model: gpt-4o-mini
  temperature: 0.9
  concurrency: 4
  call_timeout: 60s
  max_retries: 3
  rate_limit: 1.0
  burst: 10

state:
  enabled: true
  backend: sqlite     # sqlite, json
  path: .gate/reports.db

server:
  host: 127.0.0.1
  port: 8080
  cors_origins: []
`
