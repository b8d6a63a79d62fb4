package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions per topic. Events for one
// user always land on the same shard, so broker-native ordering holds
// per user within a topic.
const ShardCount = 64

// GetShardID calculates the deterministic shard for an owning identity.
func GetShardID(ownerID string) int {
	checksum := crc32.ChecksumIEEE([]byte(ownerID))
	return int(checksum % ShardCount)
}

// Subject returns the publish subject for a subject-space prefix and the
// owning identity. Format: {prefix}.{shard_id}.user.{owner_id}
func Subject(prefix, ownerID string) string {
	return fmt.Sprintf("%s.%d.user.%s", prefix, GetShardID(ownerID), ownerID)
}
