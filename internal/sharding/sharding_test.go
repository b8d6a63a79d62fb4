package sharding

import "testing"

func TestGetShardID_Deterministic(t *testing.T) {
	first := GetShardID("user-42")
	for i := 0; i < 10; i++ {
		if got := GetShardID("user-42"); got != first {
			t.Fatalf("shard id not deterministic: %d vs %d", got, first)
		}
	}
	if first < 0 || first >= ShardCount {
		t.Fatalf("shard id out of range: %d", first)
	}
}

func TestSubject_Format(t *testing.T) {
	got := Subject("app.task", "user-42")
	want := "app.task."
	if len(got) <= len(want) || got[:len(want)] != want {
		t.Fatalf("unexpected subject prefix: %q", got)
	}
	if got[len(got)-len(".user.user-42"):] != ".user.user-42" {
		t.Fatalf("unexpected subject suffix: %q", got)
	}
}
