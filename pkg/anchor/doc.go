// Package anchor publishes registry events to a Hedera Consensus Service topic
// so the registry history can be audited and replayed from a mirror node.
//
// Each committed event becomes one poem-1 JSON message:
//
//	{"p":"poem-1","op":"publish","seq":1,"by":"0.0.2002","id":0,"text":"Roses are red"}
//
// Documents larger than CompressionThreshold carry the poem brotli compressed
// and base64 encoded in "c" with "enc":"br"; the SDK splits large messages
// into chunks.
//
// A Publisher is registered as a registry event handler and submits events in
// commit order from its own goroutine:
//
//	client, err := anchor.NewClient(anchor.ClientConfig{
//		Network:            "testnet",
//		OperatorAccountID:  "0.0.1234",
//		OperatorPrivateKey: "<private-key>",
//	})
//	publisher, err := anchor.NewPublisher(anchor.PublisherConfig{Submitter: client, TopicID: "0.0.5005"})
//	go publisher.Run(ctx)
//	reg, err := registry.Open(ctx, store, admin, registry.WithEventHandler(publisher.Handle))
package anchor
