package checkpoint

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// EmptyRoot is the root of a tree with no leaves.
func EmptyRoot() []byte {
	sum := sha256.Sum256([]byte{})
	return sum[:]
}

// HashLeaf hashes a leaf with the 0x00 domain separator.
func HashLeaf(entry []byte) []byte {
	payload := make([]byte, 1+len(entry))
	payload[0] = 0x00
	copy(payload[1:], entry)
	sum := sha256.Sum256(payload)
	return sum[:]
}

// HashNode hashes two children with the 0x01 domain separator.
func HashNode(left, right []byte) []byte {
	payload := make([]byte, 1+len(left)+len(right))
	payload[0] = 0x01
	copy(payload[1:], left)
	copy(payload[1+len(left):], right)
	sum := sha256.Sum256(payload)
	return sum[:]
}

// rootFromLeafHashes computes the RFC 6962 tree hash over already hashed leaves.
func rootFromLeafHashes(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return EmptyRoot()
	case 1:
		return leaves[0]
	default:
		split := largestPowerOfTwoLessThan(uint64(len(leaves)))
		return HashNode(rootFromLeafHashes(leaves[:split]), rootFromLeafHashes(leaves[split:]))
	}
}

// inclusionPath returns the audit path for leaf index, deepest sibling first.
func inclusionPath(index int, leaves [][]byte) [][]byte {
	if len(leaves) <= 1 {
		return nil
	}
	split := largestPowerOfTwoLessThan(uint64(len(leaves)))
	if index < split {
		return append(inclusionPath(index, leaves[:split]), rootFromLeafHashes(leaves[split:]))
	}
	return append(inclusionPath(index-split, leaves[split:]), rootFromLeafHashes(leaves[:split]))
}

// consistencyPath returns the proof that the first oldSize leaves are a prefix of leaves.
func consistencyPath(oldSize int, leaves [][]byte, complete bool) [][]byte {
	if oldSize == len(leaves) {
		if complete {
			return nil
		}
		return [][]byte{rootFromLeafHashes(leaves)}
	}
	split := largestPowerOfTwoLessThan(uint64(len(leaves)))
	if oldSize <= split {
		return append(consistencyPath(oldSize, leaves[:split], complete), rootFromLeafHashes(leaves[split:]))
	}
	return append(consistencyPath(oldSize-split, leaves[split:], false), rootFromLeafHashes(leaves[:split]))
}

func verifyInclusionPath(leafIndex, treeSize uint64, leafHash []byte, path []string, expectedRootB64 string) (bool, error) {
	if treeSize == 0 {
		return false, fmt.Errorf("tree size must be greater than zero for inclusion proofs")
	}
	if leafIndex >= treeSize {
		return false, fmt.Errorf("leaf index must be less than tree size")
	}

	fn := leafIndex
	sn := treeSize - 1
	current := append([]byte(nil), leafHash...)

	for _, node := range path {
		if sn == 0 {
			return false, nil
		}
		sibling, err := base64.StdEncoding.DecodeString(node)
		if err != nil {
			return false, fmt.Errorf("path element must be valid base64: %w", err)
		}

		if fn&1 == 1 || fn == sn {
			current = HashNode(sibling, current)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			current = HashNode(current, sibling)
		}
		fn >>= 1
		sn >>= 1
	}

	return sn == 0 && base64.StdEncoding.EncodeToString(current) == expectedRootB64, nil
}

func verifyConsistencyPath(oldSize, newSize uint64, oldRootB64, newRootB64 string, proof []string) (bool, error) {
	if oldSize == 0 {
		return true, nil
	}
	if oldSize == newSize {
		return oldRootB64 == newRootB64 && len(proof) == 0, nil
	}
	if oldSize > newSize || len(proof) == 0 {
		return false, nil
	}

	path := make([]string, 0, len(proof)+1)
	if isExactPowerOfTwo(oldSize) {
		path = append(path, oldRootB64)
	}
	path = append(path, proof...)

	fn := oldSize - 1
	sn := newSize - 1
	for fn&1 == 1 {
		fn >>= 1
		sn >>= 1
	}

	first, err := base64.StdEncoding.DecodeString(path[0])
	if err != nil {
		return false, fmt.Errorf("consistency path element must be base64: %w", err)
	}
	fr := append([]byte(nil), first...)
	sr := append([]byte(nil), first...)

	for _, element := range path[1:] {
		node, err := base64.StdEncoding.DecodeString(element)
		if err != nil {
			return false, fmt.Errorf("consistency path element must be base64: %w", err)
		}
		if sn == 0 {
			return false, nil
		}

		if fn&1 == 1 || fn == sn {
			fr = HashNode(node, fr)
			sr = HashNode(node, sr)
			for fn&1 == 0 && fn != 0 {
				fn >>= 1
				sn >>= 1
			}
		} else {
			sr = HashNode(sr, node)
		}
		fn >>= 1
		sn >>= 1
	}

	return sn == 0 &&
		base64.StdEncoding.EncodeToString(fr) == oldRootB64 &&
		base64.StdEncoding.EncodeToString(sr) == newRootB64, nil
}

func isExactPowerOfTwo(value uint64) bool {
	return value != 0 && value&(value-1) == 0
}

func largestPowerOfTwoLessThan(value uint64) int {
	if value <= 1 {
		return 0
	}
	result := uint64(1)
	for result<<1 < value {
		result <<= 1
	}
	return int(result)
}
