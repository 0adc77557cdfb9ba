package anchor

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
	hedera "github.com/hashgraph/hedera-sdk-go/v2"
)

// Submitter anchors one event to a topic.
type Submitter interface {
	SubmitEvent(ctx context.Context, topicID string, event registry.Event) (OperationResult, error)
}

// Client submits anchor transactions with an operator account.
type Client struct {
	hederaClient *hedera.Client
	operatorKey  hedera.PrivateKey
	network      string
	maxChunks    uint64
}

// NewClient creates a new anchor Client.
func NewClient(config ClientConfig) (*Client, error) {
	operatorConfig := shared.OperatorConfig{
		Network:    config.Network,
		AccountID:  config.OperatorAccountID,
		PrivateKey: config.OperatorPrivateKey,
	}
	hederaClient, err := shared.NewOperatorClient(operatorConfig)
	if err != nil {
		return nil, err
	}
	operatorKey, err := shared.ParsePrivateKey(config.OperatorPrivateKey)
	if err != nil {
		return nil, err
	}
	network, _ := shared.NormalizeNetwork(config.Network)

	maxChunks := config.MaxChunks
	if maxChunks == 0 {
		maxChunks = DefaultMaxChunks
	}

	return &Client{
		hederaClient: hederaClient,
		operatorKey:  operatorKey,
		network:      network,
		maxChunks:    maxChunks,
	}, nil
}

// Network returns the normalised network name.
func (client *Client) Network() string {
	return client.network
}

// CreateTopic creates an anchor topic administered by the operator key.
func (client *Client) CreateTopic(ctx context.Context, options CreateTopicOptions) (OperationResult, error) {
	if err := ctx.Err(); err != nil {
		return OperationResult{}, err
	}

	memo := strings.TrimSpace(options.Memo)
	if memo == "" {
		memo = BuildTopicMemo("")
	}
	var submitKey hedera.Key
	if options.RestrictSubmit {
		submitKey = client.operatorKey.PublicKey()
	}
	transaction := BuildCreateTopicTx(memo, client.operatorKey.PublicKey(), submitKey)

	response, err := transaction.Execute(client.hederaClient)
	if err != nil {
		return OperationResult{}, fmt.Errorf("failed to execute create topic transaction: %w", err)
	}
	receipt, err := response.GetReceipt(client.hederaClient)
	if err != nil {
		return OperationResult{}, fmt.Errorf("failed to get create topic receipt: %w", err)
	}
	if receipt.TopicID == nil {
		return OperationResult{}, fmt.Errorf("topic ID missing in create topic receipt")
	}

	return OperationResult{
		Success:       true,
		TransactionID: response.TransactionID.String(),
		TopicID:       receipt.TopicID.String(),
	}, nil
}

// SubmitEvent anchors event to topicID and waits for consensus.
func (client *Client) SubmitEvent(ctx context.Context, topicID string, event registry.Event) (OperationResult, error) {
	if err := ctx.Err(); err != nil {
		return OperationResult{}, err
	}

	transaction, err := BuildSubmitEventTx(topicID, event, "")
	if err != nil {
		return OperationResult{}, err
	}
	transaction.SetMaxChunks(client.maxChunks)

	response, err := transaction.Execute(client.hederaClient)
	if err != nil {
		return OperationResult{}, fmt.Errorf("failed to execute message submit transaction: %w", err)
	}
	receipt, err := response.GetReceipt(client.hederaClient)
	if err != nil {
		return OperationResult{}, fmt.Errorf("failed to get message submit receipt: %w", err)
	}

	return OperationResult{
		Success:        true,
		TransactionID:  response.TransactionID.String(),
		SequenceNumber: int64(receipt.TopicSequenceNumber),
		TopicID:        strings.TrimSpace(topicID),
	}, nil
}

// Close releases the network client.
func (client *Client) Close() error {
	return client.hederaClient.Close()
}

var _ Submitter = (*Client)(nil)
