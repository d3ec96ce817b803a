package kv

import (
	"fmt"
	"strconv"
	"strings"
)

// Channels the producer publishes on.
const (
	ChannelNewEmbedding = "new_embedding"
	ChannelShutdown     = "shutdown"
)

const (
	embeddingPrefix = "embedding:post:"
	reversePrefix   = "post_from_embedding:"
	postPrefix      = "post:"

	// EmbeddingPattern matches every stored embedding key.
	EmbeddingPattern = embeddingPrefix + "*"
)

// FormatPostID renders a post-id the way keys and channel payloads carry it.
func FormatPostID(postID uint32) string {
	return strconv.FormatUint(uint64(postID), 10)
}

// EmbeddingKey is where the producer stores the JSON embedding of a post.
func EmbeddingKey(postID uint32) string {
	return embeddingPrefix + FormatPostID(postID)
}

// ReverseKey maps a vector fingerprint back to its post-id.
func ReverseKey(fingerprint string) string {
	return reversePrefix + fingerprint
}

// PostKey holds the opaque post content.
func PostKey(postID uint32) string {
	return postPrefix + FormatPostID(postID)
}

// ParsePostID parses a decimal post-id, tolerating surrounding whitespace.
func ParsePostID(s string) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid post id %q: %w", s, err)
	}
	return uint32(id), nil
}

// PostIDFromEmbeddingKey extracts the post-id from an embedding key.
func PostIDFromEmbeddingKey(key string) (uint32, error) {
	rest, ok := strings.CutPrefix(key, embeddingPrefix)
	if !ok {
		return 0, fmt.Errorf("not an embedding key: %q", key)
	}
	return ParsePostID(rest)
}
