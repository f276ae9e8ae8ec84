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
	"log/slog"

	"github.com/novatechflow/convene/pkg/assignor"
	"github.com/novatechflow/convene/pkg/grouplog"
	"github.com/novatechflow/convene/pkg/protocol"
)

// Coordinator is the entry point for all group operations. It authorizes each
// request, routes it to the shard table owning the group, and handles the
// offset bookkeeping that does not need the group lock.
type Coordinator struct {
	cfg    Config
	log    grouplog.Log
	auth   Authorizer
	logger *slog.Logger
	tables []*Table
}

// NewCoordinator wires a coordinator over the given persistent log. A nil
// authorizer allows everything.
func NewCoordinator(cfg Config, log grouplog.Log, auth Authorizer, logger *slog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if auth == nil {
		auth = AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	registry := assignor.NewRegistry()
	c := &Coordinator{
		cfg:    cfg,
		log:    log,
		auth:   auth,
		logger: logger,
		tables: make([]*Table, cfg.Shards),
	}
	for shard := range c.tables {
		c.tables[shard] = newTable(shard, cfg.Shards, cfg, log, registry, logger)
	}
	return c
}

// Start replays all shards and begins serving. Requests arriving before Start
// completes are answered with COORDINATOR_LOAD_IN_PROGRESS.
func (c *Coordinator) Start(ctx context.Context) error {
	for _, table := range c.tables {
		if err := table.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts down all shard tables.
func (c *Coordinator) Stop() {
	for _, table := range c.tables {
		table.Stop()
	}
}

func (c *Coordinator) table(groupID string) *Table {
	return c.tables[ShardFor(groupID, c.cfg.Shards)]
}

// JoinGroup admits or re-admits a member; the call suspends until the join
// barrier for the next generation closes.
func (c *Coordinator) JoinGroup(ctx context.Context, req *protocol.JoinGroupRequest) *protocol.JoinGroupResponse {
	if !c.auth.Authorized(OpRead, req.GroupID) {
		return &protocol.JoinGroupResponse{ErrorCode: protocol.GROUP_AUTHORIZATION_FAILED, MemberID: req.MemberID}
	}
	return c.table(req.GroupID).JoinGroup(ctx, req)
}

// SyncGroup distributes the generation's assignment.
func (c *Coordinator) SyncGroup(ctx context.Context, req *protocol.SyncGroupRequest) *protocol.SyncGroupResponse {
	if !c.auth.Authorized(OpRead, req.GroupID) {
		return &protocol.SyncGroupResponse{ErrorCode: protocol.GROUP_AUTHORIZATION_FAILED}
	}
	return c.table(req.GroupID).SyncGroup(ctx, req)
}

// Heartbeat keeps a member's session alive.
func (c *Coordinator) Heartbeat(req *protocol.HeartbeatRequest) *protocol.HeartbeatResponse {
	if !c.auth.Authorized(OpRead, req.GroupID) {
		return &protocol.HeartbeatResponse{ErrorCode: protocol.GROUP_AUTHORIZATION_FAILED}
	}
	return c.table(req.GroupID).Heartbeat(req)
}

// LeaveGroup removes members explicitly.
func (c *Coordinator) LeaveGroup(req *protocol.LeaveGroupRequest) *protocol.LeaveGroupResponse {
	if !c.auth.Authorized(OpRead, req.GroupID) {
		return &protocol.LeaveGroupResponse{ErrorCode: protocol.GROUP_AUTHORIZATION_FAILED}
	}
	return c.table(req.GroupID).LeaveGroup(req)
}

// OffsetCommit validates the request against live membership and persists each
// partition's offset. Validation holds the group lock; the writes do not.
func (c *Coordinator) OffsetCommit(ctx context.Context, req *protocol.OffsetCommitRequest) *protocol.OffsetCommitResponse {
	resp := &protocol.OffsetCommitResponse{}
	code := protocol.NONE
	if !c.auth.Authorized(OpRead, req.GroupID) {
		code = protocol.GROUP_AUTHORIZATION_FAILED
	} else {
		code = c.table(req.GroupID).ValidateOffsetCommit(req)
	}
	for _, topic := range req.Topics {
		topicResp := protocol.OffsetCommitTopicResponse{Name: topic.Name}
		for _, partition := range topic.Partitions {
			partCode := code
			if partCode == protocol.NONE {
				err := c.log.CommitOffset(ctx, req.GroupID, topic.Name, partition.Partition, partition.Offset, partition.Metadata)
				if err != nil {
					c.logger.Error("offset commit failed", "group", req.GroupID, "topic", topic.Name,
						"partition", partition.Partition, "error", err)
					partCode = protocol.UNKNOWN_SERVER_ERROR
				}
			}
			if partCode == protocol.NONE {
				offsetCommits.WithLabelValues("ok").Inc()
			} else {
				offsetCommits.WithLabelValues("rejected").Inc()
			}
			topicResp.Partitions = append(topicResp.Partitions, protocol.OffsetCommitPartitionResponse{
				Partition: partition.Partition,
				ErrorCode: partCode,
			})
		}
		resp.Topics = append(resp.Topics, topicResp)
	}
	return resp
}

// OffsetFetch returns committed offsets; unknown partitions report -1.
func (c *Coordinator) OffsetFetch(ctx context.Context, req *protocol.OffsetFetchRequest) *protocol.OffsetFetchResponse {
	if !c.auth.Authorized(OpDescribe, req.GroupID) {
		return &protocol.OffsetFetchResponse{ErrorCode: protocol.GROUP_AUTHORIZATION_FAILED}
	}
	if code := c.table(req.GroupID).gate(req.GroupID); code != protocol.NONE {
		return &protocol.OffsetFetchResponse{ErrorCode: code}
	}
	resp := &protocol.OffsetFetchResponse{}
	for _, topic := range req.Topics {
		topicResp := protocol.OffsetFetchTopicResponse{Name: topic.Name}
		for _, partition := range topic.Partitions {
			offset, metadata, err := c.log.FetchOffset(ctx, req.GroupID, topic.Name, partition)
			entry := protocol.OffsetFetchPartitionResponse{Partition: partition, Offset: offset, Metadata: metadata}
			if err != nil {
				c.logger.Error("offset fetch failed", "group", req.GroupID, "topic", topic.Name,
					"partition", partition, "error", err)
				entry.Offset = -1
				entry.ErrorCode = protocol.UNKNOWN_SERVER_ERROR
			}
			topicResp.Partitions = append(topicResp.Partitions, entry)
		}
		resp.Topics = append(resp.Topics, topicResp)
	}
	return resp
}

// DescribeGroups reports state and membership for the requested groups.
func (c *Coordinator) DescribeGroups(req *protocol.DescribeGroupsRequest) *protocol.DescribeGroupsResponse {
	resp := &protocol.DescribeGroupsResponse{}
	for _, groupID := range req.Groups {
		if !c.auth.Authorized(OpDescribe, groupID) {
			resp.Groups = append(resp.Groups, protocol.DescribeGroupsGroup{
				ErrorCode: protocol.GROUP_AUTHORIZATION_FAILED,
				GroupID:   groupID,
			})
			continue
		}
		resp.Groups = append(resp.Groups, c.table(groupID).Describe(groupID))
	}
	return resp
}

// ListGroups enumerates groups across all shards, filtered by state and by
// what the caller may describe.
func (c *Coordinator) ListGroups(req *protocol.ListGroupsRequest) *protocol.ListGroupsResponse {
	resp := &protocol.ListGroupsResponse{}
	for _, table := range c.tables {
		for _, g := range table.List(req.StatesFilter) {
			if !c.auth.Authorized(OpDescribe, g.GroupID) {
				continue
			}
			resp.Groups = append(resp.Groups, g)
		}
	}
	return resp
}

// DeleteGroups removes groups with no members along with their offsets.
func (c *Coordinator) DeleteGroups(ctx context.Context, req *protocol.DeleteGroupsRequest) *protocol.DeleteGroupsResponse {
	resp := &protocol.DeleteGroupsResponse{}
	for _, groupID := range req.Groups {
		code := protocol.GROUP_AUTHORIZATION_FAILED
		if c.auth.Authorized(OpDelete, groupID) {
			code = c.table(groupID).Delete(ctx, groupID)
		}
		resp.Groups = append(resp.Groups, protocol.DeleteGroupsGroup{Group: groupID, ErrorCode: code})
	}
	return resp
}
