package lsa

import "github.com/spaolacci/murmur3"

// ShardOf assigns an actor to one of n shards. All of an actor's transitions
// are counted by the same shard so no shard ever sees an actor boundary
// belonging to another.
func ShardOf(actorID string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(murmur3.Sum32([]byte(actorID)) % uint32(n))
}

// partitionSequences distributes sequences across n shards by actor.
func partitionSequences(seqs []Sequence, n int) [][]Sequence {
	shards := make([][]Sequence, n)
	for _, s := range seqs {
		i := ShardOf(s.ActorID, n)
		shards[i] = append(shards[i], s)
	}
	return shards
}
