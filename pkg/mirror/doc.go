// Package mirror is a small Hedera mirror node REST client. The registry uses
// it to read back the consensus topic its events are anchored to.
//
// Topic messages are read one page at a time, continuing from the last
// sequence number received:
//
//	client, err := mirror.NewClient(mirror.Config{Network: "testnet"})
//	messages, more, err := client.GetTopicMessagesAfter(ctx, "0.0.5005", 10, 100)
package mirror
