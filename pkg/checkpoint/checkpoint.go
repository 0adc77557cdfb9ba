package checkpoint

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

// Checkpoint commits to every token minted so far.
type Checkpoint struct {
	TreeSize uint64 `json:"treeSize"`
	Root     string `json:"root"`
}

// InclusionProof shows that one token is part of a checkpoint.
type InclusionProof struct {
	TokenID   uint64   `json:"tokenId"`
	LeafIndex uint64   `json:"leafIndex"`
	TreeSize  uint64   `json:"treeSize"`
	LeafHash  string   `json:"leafHash"`
	Path      []string `json:"path"`
	Root      string   `json:"root"`
}

// ConsistencyProof shows that a newer checkpoint extends an older one.
type ConsistencyProof struct {
	OldSize uint64   `json:"oldSize"`
	NewSize uint64   `json:"newSize"`
	OldRoot string   `json:"oldRoot"`
	NewRoot string   `json:"newRoot"`
	Path    []string `json:"path"`
}

type leafEntry struct {
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
	Text  string `json:"text"`
}

// CanonicalLeaf returns the canonical JSON encoding of a token: sorted keys,
// no insignificant whitespace, no HTML escaping.
func CanonicalLeaf(token registry.Token) ([]byte, error) {
	if !utf8.ValidString(token.Text) || !utf8.ValidString(token.Owner) {
		return nil, fmt.Errorf("token %d is not valid UTF-8", token.ID)
	}
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(leafEntry{ID: token.ID, Owner: token.Owner, Text: token.Text}); err != nil {
		return nil, fmt.Errorf("failed to encode leaf: %w", err)
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

// LeafHash returns the hex leaf hash of a token.
func LeafHash(token registry.Token) (string, error) {
	canonical, err := CanonicalLeaf(token)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(HashLeaf(canonical)), nil
}

// Build computes the checkpoint over tokens, which must be ordered by id.
func Build(tokens []registry.Token) (Checkpoint, error) {
	leaves, err := leafHashes(tokens)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{
		TreeSize: uint64(len(leaves)),
		Root:     base64.StdEncoding.EncodeToString(rootFromLeafHashes(leaves)),
	}, nil
}

// Prove builds an inclusion proof for token id.
func Prove(tokens []registry.Token, id uint64) (InclusionProof, error) {
	leaves, err := leafHashes(tokens)
	if err != nil {
		return InclusionProof{}, err
	}
	index := -1
	for position, token := range tokens {
		if token.ID == id {
			index = position
			break
		}
	}
	if index < 0 {
		return InclusionProof{}, &registry.Error{
			Kind:    registry.KindNotFound,
			Message: fmt.Sprintf("poem %d does not exist", id),
		}
	}

	path := inclusionPath(index, leaves)
	encodedPath := make([]string, 0, len(path))
	for _, node := range path {
		encodedPath = append(encodedPath, base64.StdEncoding.EncodeToString(node))
	}
	return InclusionProof{
		TokenID:   id,
		LeafIndex: uint64(index),
		TreeSize:  uint64(len(leaves)),
		LeafHash:  hex.EncodeToString(leaves[index]),
		Path:      encodedPath,
		Root:      base64.StdEncoding.EncodeToString(rootFromLeafHashes(leaves)),
	}, nil
}

// VerifyInclusion checks proof against the base64 root of a trusted checkpoint.
func VerifyInclusion(proof InclusionProof, expectedRoot string) (bool, error) {
	leafHash, err := hex.DecodeString(strings.TrimSpace(proof.LeafHash))
	if err != nil {
		return false, fmt.Errorf("leaf hash must be valid hex: %w", err)
	}
	return verifyInclusionPath(proof.LeafIndex, proof.TreeSize, leafHash, proof.Path, expectedRoot)
}

// VerifyToken checks that token is the leaf proven by proof and that proof
// resolves to expectedRoot.
func VerifyToken(token registry.Token, proof InclusionProof, expectedRoot string) (bool, error) {
	if token.ID != proof.TokenID {
		return false, nil
	}
	leafHash, err := LeafHash(token)
	if err != nil {
		return false, err
	}
	if leafHash != strings.ToLower(strings.TrimSpace(proof.LeafHash)) {
		return false, nil
	}
	return VerifyInclusion(proof, expectedRoot)
}

// ProveConsistency shows that the first oldSize tokens form a prefix of tokens.
func ProveConsistency(tokens []registry.Token, oldSize uint64) (ConsistencyProof, error) {
	leaves, err := leafHashes(tokens)
	if err != nil {
		return ConsistencyProof{}, err
	}
	newSize := uint64(len(leaves))
	if oldSize > newSize {
		return ConsistencyProof{}, fmt.Errorf("old size %d exceeds tree size %d", oldSize, newSize)
	}

	proof := ConsistencyProof{
		OldSize: oldSize,
		NewSize: newSize,
		OldRoot: base64.StdEncoding.EncodeToString(rootFromLeafHashes(leaves[:oldSize])),
		NewRoot: base64.StdEncoding.EncodeToString(rootFromLeafHashes(leaves)),
		Path:    []string{},
	}
	if oldSize == 0 || oldSize == newSize {
		return proof, nil
	}
	for _, node := range consistencyPath(int(oldSize), leaves, true) {
		proof.Path = append(proof.Path, base64.StdEncoding.EncodeToString(node))
	}
	return proof, nil
}

// VerifyConsistency checks a consistency proof between its two roots.
func VerifyConsistency(proof ConsistencyProof) (bool, error) {
	return verifyConsistencyPath(proof.OldSize, proof.NewSize, proof.OldRoot, proof.NewRoot, proof.Path)
}

func leafHashes(tokens []registry.Token) ([][]byte, error) {
	leaves := make([][]byte, 0, len(tokens))
	for index, token := range tokens {
		if index > 0 && token.ID <= tokens[index-1].ID {
			return nil, fmt.Errorf("tokens must be strictly ordered by id: %d follows %d", token.ID, tokens[index-1].ID)
		}
		canonical, err := CanonicalLeaf(token)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, HashLeaf(canonical))
	}
	return leaves, nil
}
