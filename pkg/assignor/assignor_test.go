// Copyright 2026 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package assignor

import (
	"testing"

	"github.com/novatechflow/convene/pkg/protocol"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"range", "roundrobin"} {
		if _, ok := registry.Resolve(name); !ok {
			t.Errorf("expected %q registered", name)
		}
	}
	if _, ok := registry.Resolve("sticky"); ok {
		t.Error("did not expect sticky registered by default")
	}
}

func TestRangeAssignSplitsContiguously(t *testing.T) {
	members := []Member{
		{ID: "m1", Topics: []string{"orders"}},
		{ID: "m2", Topics: []string{"orders"}},
	}
	partitions := map[string][]int32{"orders": {0, 1, 2, 3, 4}}

	out, err := Range{}.Assign(members, partitions)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	assertPartitions(t, out, "m1", "orders", []int32{0, 1, 2})
	assertPartitions(t, out, "m2", "orders", []int32{3, 4})
}

func TestRoundRobinAlternates(t *testing.T) {
	members := []Member{
		{ID: "m1", Topics: []string{"orders", "payments"}},
		{ID: "m2", Topics: []string{"orders"}},
	}
	partitions := map[string][]int32{
		"orders":   {0, 1, 2},
		"payments": {0},
	}

	out, err := RoundRobin{}.Assign(members, partitions)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	assertPartitions(t, out, "m1", "orders", []int32{0, 2})
	assertPartitions(t, out, "m2", "orders", []int32{1})
	assertPartitions(t, out, "m1", "payments", []int32{0})
}

func TestAssignCoversEveryMember(t *testing.T) {
	members := []Member{
		{ID: "m1", Topics: []string{"orders"}},
		{ID: "idle", Topics: []string{"unrelated"}},
	}
	partitions := map[string][]int32{"orders": {0}}

	for _, strategy := range []Assignor{Range{}, RoundRobin{}} {
		out, err := strategy.Assign(members, partitions)
		if err != nil {
			t.Fatalf("%s: %v", strategy.Name(), err)
		}
		if _, ok := out["idle"]; !ok {
			t.Errorf("%s: missing entry for idle member", strategy.Name())
		}
		if len(out["idle"]) != 0 {
			t.Errorf("%s: idle member should have empty assignment", strategy.Name())
		}
	}
}

func assertPartitions(t *testing.T, out map[string][]protocol.AssignmentTopic, member, topic string, want []int32) {
	t.Helper()
	for _, assigned := range out[member] {
		if assigned.Topic != topic {
			continue
		}
		if len(assigned.Partitions) != len(want) {
			t.Fatalf("%s/%s: got %v want %v", member, topic, assigned.Partitions, want)
		}
		for i := range want {
			if assigned.Partitions[i] != want[i] {
				t.Fatalf("%s/%s: got %v want %v", member, topic, assigned.Partitions, want)
			}
		}
		return
	}
	t.Fatalf("no assignment for %s/%s", member, topic)
}
