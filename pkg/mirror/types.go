package mirror

// TopicInfo is the subset of the mirror node topic resource the registry reads.
type TopicInfo struct {
	TopicID          string         `json:"topic_id"`
	Memo             string         `json:"memo"`
	Deleted          bool           `json:"deleted"`
	CreatedTimestamp string         `json:"created_timestamp"`
	SubmitKey        map[string]any `json:"submit_key"`
}

// TopicMessage is one consensus message. Chunked submissions arrive as several
// messages sharing ChunkInfo.InitialTransactionID.
type TopicMessage struct {
	ConsensusTimestamp string     `json:"consensus_timestamp"`
	ChunkInfo          *ChunkInfo `json:"chunk_info,omitempty"`
	Message            string     `json:"message"`
	PayerAccountID     string     `json:"payer_account_id"`
	RunningHash        string     `json:"running_hash"`
	SequenceNumber     int64      `json:"sequence_number"`
	TopicID            string     `json:"topic_id"`
}

type ChunkInfo struct {
	InitialTransactionID any `json:"initial_transaction_id,omitempty"`
	Number               int `json:"number,omitempty"`
	Total                int `json:"total,omitempty"`
}

type topicMessagesResponse struct {
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	Messages []TopicMessage `json:"messages"`
}
