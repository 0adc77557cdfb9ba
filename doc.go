// Package poetry_registry_go is a registry that mints one non-fungible token
// per poem. It stores the text, tracks ownership and enforces simple
// governance rules: a maximum poem length, a pause switch and admin-only
// configuration.
//
// # Packages
//
//   - pkg/registry: the registry state machine, its errors and events
//   - pkg/registry/sqlite: durable storage on SQLite
//   - pkg/command: driver commands, optionally signed with secp256k1 keys
//   - pkg/anchor: publishes committed events to a Hedera Consensus Service topic
//   - pkg/indexer: rebuilds the registry from the anchor topic via a mirror node
//   - pkg/checkpoint: RFC 6962 Merkle checkpoints and inclusion proofs over poems
//   - pkg/mirror: a minimal Hedera mirror node client
//   - pkg/shared: network, key, environment and logging helpers
//
// The poetry command in cmd/poetry drives a registry stored in a local
// SQLite database.
//
// # Installation
//
//	go install github.com/hashgraph-online/poetry-registry-go/cmd/poetry@latest
package poetry_registry_go
