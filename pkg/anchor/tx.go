package anchor

import (
	"fmt"
	"strings"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	hedera "github.com/hashgraph/hedera-sdk-go/v2"
)

// BuildTopicMemo returns the memo identifying an anchor topic for collection.
func BuildTopicMemo(collection string) string {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = registry.DefaultName
	}
	return fmt.Sprintf("%s:%s", Protocol, collection)
}

// BuildCreateTopicTx builds an unsigned topic creation transaction.
func BuildCreateTopicTx(memo string, adminKey, submitKey hedera.Key) *hedera.TopicCreateTransaction {
	transaction := hedera.NewTopicCreateTransaction().SetTopicMemo(memo)
	if adminKey != nil {
		transaction.SetAdminKey(adminKey)
	}
	if submitKey != nil {
		transaction.SetSubmitKey(submitKey)
	}
	return transaction
}

// BuildSubmitEventTx builds an unsigned message submission anchoring event to topicID.
func BuildSubmitEventTx(
	topicID string,
	event registry.Event,
	transactionMemo string,
) (*hedera.TopicMessageSubmitTransaction, error) {
	trimmedTopicID := strings.TrimSpace(topicID)
	if trimmedTopicID == "" {
		return nil, fmt.Errorf("anchor topic ID is required")
	}
	parsedTopicID, err := hedera.TopicIDFromString(trimmedTopicID)
	if err != nil {
		return nil, fmt.Errorf("invalid anchor topic ID: %w", err)
	}

	payload, err := EncodeEvent(event)
	if err != nil {
		return nil, err
	}

	transaction := hedera.NewTopicMessageSubmitTransaction().
		SetTopicID(parsedTopicID).
		SetMessage(payload).
		SetMaxChunks(DefaultMaxChunks)
	if strings.TrimSpace(transactionMemo) != "" {
		transaction.SetTransactionMemo(transactionMemo)
	}
	return transaction, nil
}
