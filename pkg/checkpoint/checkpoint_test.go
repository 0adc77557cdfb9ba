package checkpoint

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

func makeTokens(count int) []registry.Token {
	tokens := make([]registry.Token, 0, count)
	for index := 0; index < count; index++ {
		tokens = append(tokens, registry.Token{
			ID:    uint64(index),
			Text:  fmt.Sprintf("verse %d", index),
			Owner: fmt.Sprintf("0.0.%d", 1000+index%3),
		})
	}
	return tokens
}

func TestCanonicalLeaf(t *testing.T) {
	canonical, err := CanonicalLeaf(registry.Token{ID: 7, Owner: "0.0.1", Text: "a<b & \"c\""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"id":7,"owner":"0.0.1","text":"a<b & \"c\""}`
	if string(canonical) != expected {
		t.Fatalf("expected %s, got %s", expected, canonical)
	}
}

func TestCanonicalLeafRejectsInvalidUTF8(t *testing.T) {
	for _, text := range []string{"\xff", "\xfe"} {
		if _, err := LeafHash(registry.Token{ID: 0, Owner: "0.0.1", Text: text}); err == nil {
			t.Fatalf("expected error for text %q", text)
		}
	}
	if _, err := Build([]registry.Token{{ID: 0, Owner: "0.0.1", Text: "ok"}, {ID: 1, Owner: "0.0.1", Text: "\xff"}}); err == nil {
		t.Fatal("expected build to fail on text that is not valid UTF-8")
	}
}

func TestBuildEmpty(t *testing.T) {
	checkpoint, err := Build(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkpoint.TreeSize != 0 {
		t.Fatalf("expected empty tree, got %d", checkpoint.TreeSize)
	}
	if checkpoint.Root != "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=" {
		t.Fatalf("unexpected empty root: %s", checkpoint.Root)
	}
}

func TestBuildSingleLeaf(t *testing.T) {
	tokens := makeTokens(1)
	checkpoint, err := Build(tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	canonical, _ := CanonicalLeaf(tokens[0])
	if checkpoint.Root != base64.StdEncoding.EncodeToString(HashLeaf(canonical)) {
		t.Fatalf("single leaf root should equal leaf hash")
	}
}

func TestBuildRejectsUnorderedTokens(t *testing.T) {
	tokens := []registry.Token{{ID: 2, Text: "b", Owner: "x"}, {ID: 1, Text: "a", Owner: "x"}}
	if _, err := Build(tokens); err == nil {
		t.Fatal("expected ordering error")
	}
}

func TestInclusionProofsVerifyForEveryLeaf(t *testing.T) {
	for size := 1; size <= 17; size++ {
		tokens := makeTokens(size)
		checkpoint, err := Build(tokens)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, token := range tokens {
			proof, err := Prove(tokens, token.ID)
			if err != nil {
				t.Fatalf("size %d id %d: unexpected error: %v", size, token.ID, err)
			}
			if proof.Root != checkpoint.Root {
				t.Fatalf("size %d id %d: proof root differs from checkpoint", size, token.ID)
			}
			ok, err := VerifyToken(token, proof, checkpoint.Root)
			if err != nil || !ok {
				t.Fatalf("size %d id %d: expected proof to verify (%v)", size, token.ID, err)
			}
		}
	}
}

func TestInclusionProofRejectsTampering(t *testing.T) {
	tokens := makeTokens(6)
	checkpoint, _ := Build(tokens)
	proof, err := Prove(tokens, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	altered := tokens[4]
	altered.Text = "rewritten"
	if ok, _ := VerifyToken(altered, proof, checkpoint.Root); ok {
		t.Fatal("expected altered text to fail verification")
	}

	otherRoot, _ := Build(tokens[:5])
	if ok, _ := VerifyInclusion(proof, otherRoot.Root); ok {
		t.Fatal("expected proof to fail against a different root")
	}

	truncated := proof
	truncated.Path = proof.Path[:len(proof.Path)-1]
	if ok, _ := VerifyInclusion(truncated, checkpoint.Root); ok {
		t.Fatal("expected truncated path to fail")
	}

	if _, err := VerifyInclusion(InclusionProof{LeafHash: "zz", TreeSize: 1}, checkpoint.Root); err == nil {
		t.Fatal("expected error for invalid hex leaf hash")
	}
}

func TestProveUnknownToken(t *testing.T) {
	_, err := Prove(makeTokens(3), 9)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestConsistencyProofs(t *testing.T) {
	for newSize := 1; newSize <= 13; newSize++ {
		tokens := makeTokens(newSize)
		for oldSize := 0; oldSize <= newSize; oldSize++ {
			proof, err := ProveConsistency(tokens, uint64(oldSize))
			if err != nil {
				t.Fatalf("%d->%d: unexpected error: %v", oldSize, newSize, err)
			}
			oldCheckpoint, _ := Build(tokens[:oldSize])
			if proof.OldRoot != oldCheckpoint.Root {
				t.Fatalf("%d->%d: old root mismatch", oldSize, newSize)
			}
			ok, err := VerifyConsistency(proof)
			if err != nil || !ok {
				t.Fatalf("%d->%d: expected consistency proof to verify (%v)", oldSize, newSize, err)
			}
		}
	}
}

func TestConsistencyProofDetectsRewrite(t *testing.T) {
	tokens := makeTokens(7)
	proof, err := ProveConsistency(tokens, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rewritten := makeTokens(3)
	rewritten[1].Text = "changed history"
	forged, _ := Build(rewritten)
	proof.OldRoot = forged.Root
	if ok, _ := VerifyConsistency(proof); ok {
		t.Fatal("expected rewritten history to fail consistency")
	}

	if _, err := ProveConsistency(tokens, 8); err == nil {
		t.Fatal("expected error when old size exceeds tree size")
	}
}
