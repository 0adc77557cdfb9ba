package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const tokenURIPrefix = "data:application/json;base64,"

// TokenMetadata is the JSON document embedded in a token URI.
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Poem        string `json:"poem"`
	Owner       string `json:"owner"`
}

// TokenURI returns a self-contained data URI describing token id.
func (registry *Registry) TokenURI(id uint64) (string, error) {
	registry.mutex.RLock()
	name := registry.state.Name
	token, exists := registry.state.Tokens[id]
	registry.mutex.RUnlock()

	if !exists {
		return "", notFoundError(id)
	}
	return BuildTokenURI(name, token)
}

// BuildTokenURI encodes token metadata as a base64 JSON data URI.
func BuildTokenURI(collection string, token Token) (string, error) {
	metadata := TokenMetadata{
		Name:        fmt.Sprintf("%s #%d", collection, token.ID),
		Description: fmt.Sprintf("Poem #%d published to the %s registry", token.ID, collection),
		Poem:        token.Text,
		Owner:       token.Owner,
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode token metadata: %w", err)
	}
	return tokenURIPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// ParseTokenURI decodes a data URI produced by BuildTokenURI.
func ParseTokenURI(uri string) (TokenMetadata, error) {
	var metadata TokenMetadata
	if !strings.HasPrefix(uri, tokenURIPrefix) {
		return metadata, fmt.Errorf("token URI must start with %q", tokenURIPrefix)
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, tokenURIPrefix))
	if err != nil {
		return metadata, fmt.Errorf("failed to decode token URI: %w", err)
	}
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to decode token metadata: %w", err)
	}
	return metadata, nil
}
