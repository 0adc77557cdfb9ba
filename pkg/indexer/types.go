package indexer

import (
	"log/slog"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

const (
	defaultPageLimit        = 100
	defaultMaxPagesPerCycle = 100
)

type Config struct {
	Network       string
	MirrorBaseURL string
	MirrorAPIKey  string
	TopicID       string
	// Admin is the deployer account the anchored history starts from.
	Admin     string
	Name      string
	Symbol    string
	PageLimit int
	// MaxPagesPerCycle bounds how many pages one IndexOnce call reads.
	MaxPagesPerCycle int
	Logger           *slog.Logger
}

// Stats describes replay progress.
type Stats struct {
	Applied           int    `json:"applied"`
	Rejected          int    `json:"rejected"`
	Duplicates        int    `json:"duplicates"`
	Malformed         int    `json:"malformed"`
	Pending           int    `json:"pending"`
	PendingChunks     int    `json:"pendingChunks"`
	LastSequence      uint64 `json:"lastSequence"`
	LastTopicSequence int64  `json:"lastTopicSequence"`
	LastTimestamp     string `json:"lastTimestamp,omitempty"`
}

type pendingEvent struct {
	event     registry.Event
	timestamp string
}

type chunkGroup struct {
	total int
	parts map[int][]byte
}
