// Package indexer rebuilds a read-only copy of the poem registry from its
// anchor topic on a Hedera mirror node.
//
// The indexer reassembles chunked submissions, decodes poem-1 messages and
// applies them strictly in sequence order under the same rules the registry
// enforces. Events that fail those rules are counted as rejected and skipped.
//
//	idx, err := indexer.New(indexer.Config{
//		Network: "testnet",
//		TopicID: "0.0.5005",
//		Admin:   "0.0.1234",
//	})
//	err = idx.IndexOnce(ctx)
//	token, ok := idx.Poem(0)
package indexer
