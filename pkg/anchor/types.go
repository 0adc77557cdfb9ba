package anchor

const (
	Protocol = "poem-1"

	OpPublish       = "publish"
	OpSetMaxLength  = "set_max_length"
	OpSetPaused     = "set_paused"
	OpTransferAdmin = "transfer_admin"

	EncodingBrotli = "br"

	// CompressionThreshold is the encoded size above which poem text is brotli compressed.
	CompressionThreshold = 1024
	DefaultMaxChunks     = 20
)

// Message is the JSON document submitted to the anchor topic for each registry event.
type Message struct {
	P         string  `json:"p"`
	Op        string  `json:"op"`
	Seq       uint64  `json:"seq"`
	Caller    string  `json:"by"`
	ID        *uint64 `json:"id,omitempty"`
	Text      string  `json:"text,omitempty"`
	Content   string  `json:"c,omitempty"`
	Encoding  string  `json:"enc,omitempty"`
	MaxLength int     `json:"max,omitempty"`
	Paused    *bool   `json:"paused,omitempty"`
	Admin     string  `json:"admin,omitempty"`
}

type OperationResult struct {
	Success        bool   `json:"success"`
	TransactionID  string `json:"transactionId,omitempty"`
	SequenceNumber int64  `json:"sequenceNumber,omitempty"`
	TopicID        string `json:"topicId,omitempty"`
}

type ClientConfig struct {
	Network            string
	OperatorAccountID  string
	OperatorPrivateKey string
	MaxChunks          uint64
}

type CreateTopicOptions struct {
	Memo string
	// RestrictSubmit sets the operator key as submit key so only the registry can anchor.
	RestrictSubmit bool
}
