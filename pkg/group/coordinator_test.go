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
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/novatechflow/convene/pkg/grouplog"
	"github.com/novatechflow/convene/pkg/protocol"
)

func commitReq(groupID string, generation int32, memberID, topic string, partition int32, offset int64) *protocol.OffsetCommitRequest {
	return &protocol.OffsetCommitRequest{
		GroupID:      groupID,
		GenerationID: generation,
		MemberID:     memberID,
		Topics: []protocol.OffsetCommitTopic{{
			Name:       topic,
			Partitions: []protocol.OffsetCommitPartition{{Partition: partition, Offset: offset, Metadata: "checkpoint"}},
		}},
	}
}

func fetchOffset(t *testing.T, c *Coordinator, groupID, topic string, partition int32) protocol.OffsetFetchPartitionResponse {
	t.Helper()
	resp := c.OffsetFetch(context.Background(), &protocol.OffsetFetchRequest{
		GroupID: groupID,
		Topics:  []protocol.OffsetFetchTopic{{Name: topic, Partitions: []int32{partition}}},
	})
	if resp.ErrorCode != protocol.NONE {
		t.Fatalf("offset fetch failed: %d", resp.ErrorCode)
	}
	return resp.Topics[0].Partitions[0]
}

func TestOffsetCommitAndFetch(t *testing.T) {
	ctx := context.Background()
	c := startCoordinator(t, grouplog.NewMemoryLog(), testConfig())
	joins := joinAll(t, c, "orders-cg", 1, "orders")
	syncAll(t, c, "orders-cg", joins)
	member := joins[0]

	resp := c.OffsetCommit(ctx, commitReq("orders-cg", 1, member.MemberID, "orders", 0, 42))
	if code := resp.Topics[0].Partitions[0].ErrorCode; code != protocol.NONE {
		t.Fatalf("commit expected NONE got %d", code)
	}
	fetched := fetchOffset(t, c, "orders-cg", "orders", 0)
	if fetched.Offset != 42 || fetched.Metadata != "checkpoint" {
		t.Fatalf("expected offset 42/checkpoint got %d/%q", fetched.Offset, fetched.Metadata)
	}
	if missing := fetchOffset(t, c, "orders-cg", "orders", 7); missing.Offset != -1 {
		t.Fatalf("uncommitted partition expected -1 got %d", missing.Offset)
	}

	resp = c.OffsetCommit(ctx, commitReq("orders-cg", 0, member.MemberID, "orders", 0, 99))
	if code := resp.Topics[0].Partitions[0].ErrorCode; code != protocol.ILLEGAL_GENERATION {
		t.Fatalf("stale generation commit expected ILLEGAL_GENERATION got %d", code)
	}
	resp = c.OffsetCommit(ctx, commitReq("orders-cg", 1, "ghost", "orders", 0, 99))
	if code := resp.Topics[0].Partitions[0].ErrorCode; code != protocol.UNKNOWN_MEMBER_ID {
		t.Fatalf("unknown member commit expected UNKNOWN_MEMBER_ID got %d", code)
	}
	if fetched = fetchOffset(t, c, "orders-cg", "orders", 0); fetched.Offset != 42 {
		t.Fatalf("rejected commits must not move the offset, got %d", fetched.Offset)
	}
}

func TestStandaloneOffsetCommit(t *testing.T) {
	ctx := context.Background()
	c := startCoordinator(t, grouplog.NewMemoryLog(), testConfig())

	// No group state at all: a simple consumer managing its own partitions.
	resp := c.OffsetCommit(ctx, commitReq("standalone-cg", -1, "", "orders", 0, 7))
	if code := resp.Topics[0].Partitions[0].ErrorCode; code != protocol.NONE {
		t.Fatalf("standalone commit expected NONE got %d", code)
	}
	if fetched := fetchOffset(t, c, "standalone-cg", "orders", 0); fetched.Offset != 7 {
		t.Fatalf("expected offset 7 got %d", fetched.Offset)
	}

	// An active generation-managed group refuses standalone commits.
	joins := joinAll(t, c, "orders-cg", 1, "orders")
	syncAll(t, c, "orders-cg", joins)
	resp = c.OffsetCommit(ctx, commitReq("orders-cg", -1, "", "orders", 0, 7))
	if code := resp.Topics[0].Partitions[0].ErrorCode; code != protocol.UNKNOWN_MEMBER_ID {
		t.Fatalf("standalone commit against live group expected UNKNOWN_MEMBER_ID got %d", code)
	}
}

func TestDeleteGroups(t *testing.T) {
	ctx := context.Background()
	c := startCoordinator(t, grouplog.NewMemoryLog(), testConfig())
	joins := joinAll(t, c, "orders-cg", 1, "orders")
	syncAll(t, c, "orders-cg", joins)
	c.OffsetCommit(ctx, commitReq("orders-cg", 1, joins[0].MemberID, "orders", 0, 42))

	resp := c.DeleteGroups(ctx, &protocol.DeleteGroupsRequest{Groups: []string{"orders-cg"}})
	if resp.Groups[0].ErrorCode != protocol.NON_EMPTY_GROUP {
		t.Fatalf("deleting a live group expected NON_EMPTY_GROUP got %d", resp.Groups[0].ErrorCode)
	}

	c.LeaveGroup(&protocol.LeaveGroupRequest{
		GroupID: "orders-cg",
		Members: []protocol.LeaveGroupMember{{MemberID: joins[0].MemberID}},
	})
	resp = c.DeleteGroups(ctx, &protocol.DeleteGroupsRequest{Groups: []string{"orders-cg"}})
	if resp.Groups[0].ErrorCode != protocol.NONE {
		t.Fatalf("deleting an empty group expected NONE got %d", resp.Groups[0].ErrorCode)
	}
	if fetched := fetchOffset(t, c, "orders-cg", "orders", 0); fetched.Offset != -1 {
		t.Fatalf("expected offsets to be dropped with the group, got %d", fetched.Offset)
	}
	resp = c.DeleteGroups(ctx, &protocol.DeleteGroupsRequest{Groups: []string{"orders-cg"}})
	if resp.Groups[0].ErrorCode != protocol.GROUP_ID_NOT_FOUND {
		t.Fatalf("deleting again expected GROUP_ID_NOT_FOUND got %d", resp.Groups[0].ErrorCode)
	}
}

func TestListAndDescribeGroups(t *testing.T) {
	c := startCoordinator(t, grouplog.NewMemoryLog(), testConfig())
	for _, groupID := range []string{"orders-cg", "billing-cg"} {
		joins := joinAll(t, c, groupID, 1, "orders")
		syncAll(t, c, groupID, joins)
	}

	list := c.ListGroups(&protocol.ListGroupsRequest{})
	if len(list.Groups) != 2 {
		t.Fatalf("expected 2 groups got %d", len(list.Groups))
	}
	list = c.ListGroups(&protocol.ListGroupsRequest{StatesFilter: []string{"Stable"}})
	if len(list.Groups) != 2 {
		t.Fatalf("stable filter expected 2 groups got %d", len(list.Groups))
	}
	list = c.ListGroups(&protocol.ListGroupsRequest{StatesFilter: []string{"Empty"}})
	if len(list.Groups) != 0 {
		t.Fatalf("empty filter expected no groups got %d", len(list.Groups))
	}

	desc := c.DescribeGroups(&protocol.DescribeGroupsRequest{Groups: []string{"orders-cg", "no-such-cg"}})
	found := desc.Groups[0]
	if found.State != "Stable" || found.Protocol != "range" || found.ProtocolType != "consumer" {
		t.Fatalf("unexpected describe result: %+v", found)
	}
	if len(found.Members) != 1 || len(found.Members[0].Assignment) == 0 {
		t.Fatalf("stable describe must carry member assignments: %+v", found.Members)
	}
	if desc.Groups[1].ErrorCode != protocol.GROUP_ID_NOT_FOUND {
		t.Fatalf("missing group expected GROUP_ID_NOT_FOUND got %d", desc.Groups[1].ErrorCode)
	}
}

type denyOp struct{ op Operation }

func (d denyOp) Authorized(op Operation, _ string) bool { return op != d.op }

func TestAuthorizationGates(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	log := grouplog.NewMemoryLog()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	denyRead := NewCoordinator(cfg, log, denyOp{OpRead}, logger)
	if err := denyRead.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer denyRead.Stop()
	if resp := denyRead.JoinGroup(ctx, joinReq("orders-cg", "", "orders")); resp.ErrorCode != protocol.GROUP_AUTHORIZATION_FAILED {
		t.Fatalf("join expected GROUP_AUTHORIZATION_FAILED got %d", resp.ErrorCode)
	}
	if resp := denyRead.Heartbeat(&protocol.HeartbeatRequest{GroupID: "orders-cg"}); resp.ErrorCode != protocol.GROUP_AUTHORIZATION_FAILED {
		t.Fatalf("heartbeat expected GROUP_AUTHORIZATION_FAILED got %d", resp.ErrorCode)
	}
	commit := denyRead.OffsetCommit(ctx, commitReq("orders-cg", -1, "", "orders", 0, 1))
	if code := commit.Topics[0].Partitions[0].ErrorCode; code != protocol.GROUP_AUTHORIZATION_FAILED {
		t.Fatalf("commit expected GROUP_AUTHORIZATION_FAILED got %d", code)
	}

	denyDescribe := NewCoordinator(cfg, grouplog.NewMemoryLog(), denyOp{OpDescribe}, logger)
	if err := denyDescribe.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer denyDescribe.Stop()
	join := awaitJoin(t, joinAsync(denyDescribe, joinReq("orders-cg", "", "orders")))
	if join.ErrorCode != protocol.NONE {
		t.Fatalf("join failed: %d", join.ErrorCode)
	}
	desc := denyDescribe.DescribeGroups(&protocol.DescribeGroupsRequest{Groups: []string{"orders-cg"}})
	if desc.Groups[0].ErrorCode != protocol.GROUP_AUTHORIZATION_FAILED {
		t.Fatalf("describe expected GROUP_AUTHORIZATION_FAILED got %d", desc.Groups[0].ErrorCode)
	}
	if list := denyDescribe.ListGroups(&protocol.ListGroupsRequest{}); len(list.Groups) != 0 {
		t.Fatalf("list must hide unauthorized groups, got %d", len(list.Groups))
	}

	denyDelete := NewCoordinator(cfg, grouplog.NewMemoryLog(), denyOp{OpDelete}, logger)
	if err := denyDelete.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer denyDelete.Stop()
	del := denyDelete.DeleteGroups(ctx, &protocol.DeleteGroupsRequest{Groups: []string{"orders-cg"}})
	if del.Groups[0].ErrorCode != protocol.GROUP_AUTHORIZATION_FAILED {
		t.Fatalf("delete expected GROUP_AUTHORIZATION_FAILED got %d", del.Groups[0].ErrorCode)
	}
}
