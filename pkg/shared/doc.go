// Package shared provides the plumbing used across the poetry registry:
// Hedera network normalisation and client construction, operator
// configuration from environment variables and .env files, private key
// parsing, entity ID validation, and slog logger setup.
//
// # Environment Variables
//
//	HEDERA_NETWORK       mainnet, testnet (default) or previewnet
//	HEDERA_ACCOUNT_ID    operator account, e.g. 0.0.1234
//	HEDERA_PRIVATE_KEY   operator key (DER or raw hex, ED25519 or ECDSA)
//
// Each variable may be scoped to a network with a MAINNET_, TESTNET_ or
// PREVIEWNET_ prefix; scoped values win over unscoped ones.
package shared
