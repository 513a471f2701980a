// Package config loads the coven-responder configuration file.
//
// The file is YAML unless its name ends in .toml. ${VAR} references are
// replaced with environment variables before decoding, so secrets can stay
// out of the file:
//
//	database:
//	  path: "${HOME}/.local/share/coven/responder.db"
//	server:
//	  http_addr: "127.0.0.1:8090"
//	auth:
//	  jwt_secret: "${COVEN_RESPONDER_JWT_SECRET}"
//	logging:
//	  level: info
//	  format: text
//	responder:
//	  default_fire_probability: 0.5
//	  default_recency_capacity: 20
//	matrix:
//	  enabled: true
//	  homeserver: "https://matrix.org"
//	  username: "responder"
//	  password: "${MATRIX_PASSWORD}"
//	  allowed_rooms: []
//	  dedupe_ttl: "5m"
//
// Only database.path is required. Matrix credentials are required once
// matrix.enabled is set.
package config
