// Package checkpoint commits to the registry's minted tokens with an RFC 6962
// Merkle tree. Leaves are the canonical JSON of {id, owner, text} in id order,
// so a checkpoint root pins every poem and its owner at a point in time.
//
// Inclusion proofs show a single poem is part of a checkpoint; consistency
// proofs show a later checkpoint only appended poems to an earlier one.
//
//	cp, err := checkpoint.Build(reg.Tokens())
//	proof, err := checkpoint.Prove(reg.Tokens(), 3)
//	ok, err := checkpoint.VerifyInclusion(proof, cp.Root)
package checkpoint
