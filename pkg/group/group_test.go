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

package group

import (
	"testing"
	"time"

	"github.com/novatechflow/convene/pkg/protocol"
)

func memberWithProtocols(id string, order int64, names ...string) *MemberSession {
	protocols := make([]protocol.GroupProtocol, 0, len(names))
	for _, name := range names {
		protocols = append(protocols, protocol.GroupProtocol{Name: name, Metadata: []byte(name)})
	}
	return &MemberSession{ID: id, joinOrder: order, Protocols: protocols}
}

func TestSelectProtocolPrefersMajorityFirstChoice(t *testing.T) {
	g := newGroup("g", time.Now())
	g.members["m1"] = memberWithProtocols("m1", 0, "roundrobin", "range")
	g.members["m2"] = memberWithProtocols("m2", 1, "roundrobin", "range")
	g.members["m3"] = memberWithProtocols("m3", 2, "range", "roundrobin")

	if got := g.selectProtocol(); got != "roundrobin" {
		t.Fatalf("expected roundrobin got %q", got)
	}
}

func TestSelectProtocolExcludesNonUnanimous(t *testing.T) {
	g := newGroup("g", time.Now())
	g.members["m1"] = memberWithProtocols("m1", 0, "sticky", "range")
	g.members["m2"] = memberWithProtocols("m2", 1, "range")

	// sticky is m1's first choice, but m2 does not support it.
	if got := g.selectProtocol(); got != "range" {
		t.Fatalf("expected range got %q", got)
	}
}

func TestSelectProtocolTieBreaksLexicographically(t *testing.T) {
	g := newGroup("g", time.Now())
	g.members["m1"] = memberWithProtocols("m1", 0, "roundrobin", "range")
	g.members["m2"] = memberWithProtocols("m2", 1, "range", "roundrobin")

	if got := g.selectProtocol(); got != "range" {
		t.Fatalf("expected range on a tie got %q", got)
	}
}

func TestSelectProtocolEmptyWhenDisjoint(t *testing.T) {
	g := newGroup("g", time.Now())
	g.members["m1"] = memberWithProtocols("m1", 0, "sticky")
	g.members["m2"] = memberWithProtocols("m2", 1, "range")

	if got := g.selectProtocol(); got != "" {
		t.Fatalf("expected no winner got %q", got)
	}
}

func TestElectLeaderPicksEarliestJoiner(t *testing.T) {
	g := newGroup("g", time.Now())
	g.members["m2"] = memberWithProtocols("m2", 5, "range")
	g.members["m1"] = memberWithProtocols("m1", 3, "range")
	g.members["m3"] = memberWithProtocols("m3", 9, "range")

	g.electLeader()
	if g.leaderID != "m1" {
		t.Fatalf("expected m1 to lead got %s", g.leaderID)
	}

	g.evict(g.members["m1"], protocol.UNKNOWN_MEMBER_ID)
	g.electLeader()
	if g.leaderID != "m2" {
		t.Fatalf("expected m2 after eviction got %s", g.leaderID)
	}
}

func TestFenceCheck(t *testing.T) {
	g := newGroup("g", time.Now())
	instance := "payments-1"
	static := memberWithProtocols("m-static", 0, "range")
	static.InstanceID = &instance
	g.members["m-static"] = static
	g.staticMembers[instance] = "m-static"
	g.members["m-dyn"] = memberWithProtocols("m-dyn", 1, "range")

	if code := g.fenceCheck("m-static", &instance); code != protocol.NONE {
		t.Fatalf("matching instance expected NONE got %d", code)
	}
	if code := g.fenceCheck("m-dyn", &instance); code != protocol.FENCED_INSTANCE_ID {
		t.Fatalf("stolen instance expected FENCED_INSTANCE_ID got %d", code)
	}
	other := "payments-2"
	if code := g.fenceCheck("m-static", &other); code != protocol.FENCED_INSTANCE_ID {
		t.Fatalf("wrong instance on static member expected FENCED_INSTANCE_ID got %d", code)
	}
	if code := g.fenceCheck("m-dyn", nil); code != protocol.NONE {
		t.Fatalf("dynamic member expected NONE got %d", code)
	}
	if code := g.fenceCheck("ghost", nil); code != protocol.UNKNOWN_MEMBER_ID {
		t.Fatalf("missing member expected UNKNOWN_MEMBER_ID got %d", code)
	}
}

func TestRecordRestoreRoundTrip(t *testing.T) {
	now := time.Now()
	g := newGroup("orders-cg", now)
	g.state = Stable
	g.generation = 4
	g.protocolType = "consumer"
	g.protocolName = "range"
	instance := "payments-1"
	leader := memberWithProtocols("m1", 0, "range")
	leader.InstanceID = &instance
	leader.SessionTimeout = 30 * time.Second
	leader.RebalanceTimeout = 2 * time.Second
	leader.Assignment = []byte{1, 2, 3}
	leader.LastHeartbeat = now
	g.members["m1"] = leader
	g.staticMembers[instance] = "m1"
	g.leaderID = "m1"

	restored := restoreGroup(g.record(now), time.Minute, now.Add(time.Second))

	if restored.state != Stable || restored.generation != 4 || restored.leaderID != "m1" {
		t.Fatalf("unexpected restored group: state=%s generation=%d leader=%s",
			restored.state, restored.generation, restored.leaderID)
	}
	member := restored.members["m1"]
	if member == nil {
		t.Fatalf("member m1 not restored")
	}
	if member.InstanceID == nil || *member.InstanceID != instance {
		t.Fatalf("instance id not restored")
	}
	if restored.staticMembers[instance] != "m1" {
		t.Fatalf("static mapping not restored")
	}
	if member.SessionTimeout != 30*time.Second || member.RebalanceTimeout != 2*time.Second {
		t.Fatalf("timeouts not restored: %v %v", member.SessionTimeout, member.RebalanceTimeout)
	}
	if string(member.Assignment) != string([]byte{1, 2, 3}) {
		t.Fatalf("assignment not restored")
	}
	// Heartbeats restart from load time so survivors get a full window.
	if !member.LastHeartbeat.Equal(now.Add(time.Second)) {
		t.Fatalf("heartbeat should reset to load time")
	}
}

func TestRestoreMidRebalanceRequiresRejoin(t *testing.T) {
	now := time.Now()
	g := newGroup("orders-cg", now)
	g.state = CompletingRebalance
	g.generation = 2
	g.protocolType = "consumer"
	member := memberWithProtocols("m1", 0, "range")
	member.SessionTimeout = 30 * time.Second
	member.Assignment = []byte{9}
	g.members["m1"] = member

	restored := restoreGroup(g.record(now), time.Minute, now)

	if restored.state != PreparingRebalance {
		t.Fatalf("expected PreparingRebalance got %s", restored.state)
	}
	if restored.priorMembers != 1 {
		t.Fatalf("expected 1 carried-over member got %d", restored.priorMembers)
	}
	restoredMember := restored.members["m1"]
	if !restoredMember.awaitingJoin {
		t.Fatalf("restored member must rejoin")
	}
	if len(restoredMember.Assignment) != 0 {
		t.Fatalf("stale assignment must not survive a restore mid-rebalance")
	}
}

func TestRestoreEmptyRecord(t *testing.T) {
	now := time.Now()
	g := newGroup("orders-cg", now)
	g.state = Stable // inconsistent on purpose: no members
	g.generation = 7

	restored := restoreGroup(g.record(now), time.Minute, now)
	if restored.state != Empty || restored.generation != 7 {
		t.Fatalf("expected Empty generation 7, got %s generation %d", restored.state, restored.generation)
	}
	if restored.emptySince.IsZero() {
		t.Fatalf("empty group must carry its retirement clock")
	}
}
