package config

// ExampleServerConfig is written by "metacoord init".
const ExampleServerConfig = `# metacoord configuration

# Address clients connect to.
listen: ":9000"

# Connections served at once. Further clients wait until a worker is free.
max_workers: 10

# Per-connection deadlines. "0s" disables.
read_timeout: "30s"
write_timeout: "30s"

# trace, debug, info, warn or error. Overrides --log-level when set.
# log_level: info

placement:
  # Storage nodes, in rotation order.
  nodes:
    - "localhost:9001"
    - "localhost:9002"
    - "localhost:9003"
  # Cursor positions consumed per chunk.
  cursor_stride: 3
  # Also report every node selected for a chunk.
  record_replicas: false
  # Upload requests asking for more chunks are rejected.
  max_chunks_per_request: 1048576

metrics:
  # Prometheus endpoint, e.g. ":9100". Empty disables it.
  listen: ""
  collect_interval: "15s"

audit:
  enabled: true
`
