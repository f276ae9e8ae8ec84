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
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/novatechflow/convene/pkg/assignor"
	"github.com/novatechflow/convene/pkg/grouplog"
	"github.com/novatechflow/convene/pkg/protocol"
)

// ShardFor maps a group id to its owning shard.
func ShardFor(groupID string, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(groupID))
	return int(h.Sum32() % uint32(shards))
}

// Table owns every group whose id hashes to its shard. A single mutex
// serializes state-machine transitions per shard; suspended requests park on
// buffered channels and never hold the lock, so one group's rebalance cannot
// stall another group's requests beyond lock hold times.
type Table struct {
	shard     int
	shards    int
	cfg       Config
	log       grouplog.Log
	assignors *assignor.Registry
	logger    *slog.Logger

	mu     sync.Mutex
	groups map[string]*Group

	ready    atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newTable(shard, shards int, cfg Config, log grouplog.Log, registry *assignor.Registry, logger *slog.Logger) *Table {
	return &Table{
		shard:     shard,
		shards:    shards,
		cfg:       cfg,
		log:       log,
		assignors: registry,
		logger:    logger.With("shard", shard),
		groups:    make(map[string]*Group),
		stopCh:    make(chan struct{}),
	}
}

func (t *Table) owns(groupID string) bool {
	return ShardFor(groupID, t.shards) == t.shard
}

// gate rejects requests this table cannot serve yet or at all.
func (t *Table) gate(groupID string) int16 {
	if !t.owns(groupID) {
		return protocol.NOT_COORDINATOR
	}
	if !t.ready.Load() {
		return protocol.COORDINATOR_LOAD_IN_PROGRESS
	}
	return protocol.NONE
}

// Start replays the persistent log for this shard and begins sweeping.
// A corrupt record is fatal: the shard must not serve partial state.
func (t *Table) Start(ctx context.Context) error {
	records, err := t.log.Replay(ctx, t.owns)
	if err != nil {
		return err
	}
	now := time.Now()
	t.mu.Lock()
	for _, record := range records {
		g := restoreGroup(record, t.cfg.DefaultRebalanceTimeout, now)
		t.groups[g.id] = g
		if g.state == PreparingRebalance {
			t.armBarrierLocked(g, g.maxRebalanceTimeout(t.cfg.DefaultRebalanceTimeout))
		}
	}
	loaded := len(t.groups)
	t.mu.Unlock()
	t.ready.Store(true)
	if loaded > 0 {
		t.logger.Info("group table loaded", "groups", loaded)
	}
	go t.sweepLoop()
	return nil
}

// Stop halts the sweeper and cancels all barrier timers.
func (t *Table) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.mu.Lock()
	for _, g := range t.groups {
		g.stopBarrierTimer()
	}
	t.mu.Unlock()
}

// JoinGroup admits a member and suspends until its join barrier closes.
func (t *Table) JoinGroup(ctx context.Context, req *protocol.JoinGroupRequest) *protocol.JoinGroupResponse {
	if code := t.gate(req.GroupID); code != protocol.NONE {
		return &protocol.JoinGroupResponse{ErrorCode: code, MemberID: req.MemberID}
	}
	if req.GroupID == "" {
		return &protocol.JoinGroupResponse{ErrorCode: protocol.INVALID_GROUP_ID}
	}
	if len(req.Protocols) == 0 || req.ProtocolType == "" {
		return &protocol.JoinGroupResponse{ErrorCode: protocol.INCONSISTENT_GROUP_PROTOCOL, MemberID: req.MemberID}
	}
	sessionTimeout := time.Duration(req.SessionTimeoutMs) * time.Millisecond
	if sessionTimeout < t.cfg.MinSessionTimeout || sessionTimeout > t.cfg.MaxSessionTimeout {
		return &protocol.JoinGroupResponse{ErrorCode: protocol.INVALID_SESSION_TIMEOUT, MemberID: req.MemberID}
	}
	rebalanceTimeout := time.Duration(req.RebalanceTimeoutMs) * time.Millisecond
	if rebalanceTimeout <= 0 {
		rebalanceTimeout = t.cfg.DefaultRebalanceTimeout
	}

	t.mu.Lock()
	g := t.groups[req.GroupID]
	if g == nil {
		if req.MemberID != "" {
			t.mu.Unlock()
			return &protocol.JoinGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID, MemberID: req.MemberID}
		}
		g = newGroup(req.GroupID, time.Now())
		t.groups[req.GroupID] = g
	}
	wait, immediate, memberID := t.joinLocked(g, req, sessionTimeout, rebalanceTimeout)
	t.mu.Unlock()

	if immediate != nil {
		return immediate
	}
	select {
	case resp := <-wait:
		return resp
	case <-ctx.Done():
		return t.abandonJoin(req.GroupID, memberID, wait)
	}
}

func (t *Table) joinLocked(g *Group, req *protocol.JoinGroupRequest, sessionTimeout, rebalanceTimeout time.Duration) (chan *protocol.JoinGroupResponse, *protocol.JoinGroupResponse, string) {
	now := time.Now()
	if g.state == Dead {
		return nil, &protocol.JoinGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID, MemberID: req.MemberID}, ""
	}
	if len(g.members) > 0 {
		if req.ProtocolType != g.protocolType {
			return nil, &protocol.JoinGroupResponse{ErrorCode: protocol.INCONSISTENT_GROUP_PROTOCOL, MemberID: req.MemberID}, ""
		}
		if !g.hasCommonProtocol(req.Protocols) {
			return nil, &protocol.JoinGroupResponse{ErrorCode: protocol.INCONSISTENT_GROUP_PROTOCOL, MemberID: req.MemberID}, ""
		}
	} else {
		g.protocolType = req.ProtocolType
	}

	var member *MemberSession
	isNew := false
	memberID := req.MemberID

	switch {
	case memberID == "" && req.GroupInstanceID != nil:
		if existing, ok := g.staticMembers[*req.GroupInstanceID]; ok {
			// Static rejoin reuses the session; any suspended request of the
			// previous incarnation is fenced out.
			member = g.members[existing]
			memberID = existing
			member.resolveJoin(&protocol.JoinGroupResponse{ErrorCode: protocol.FENCED_INSTANCE_ID, MemberID: memberID})
			member.resolveSync(&protocol.SyncGroupResponse{ErrorCode: protocol.FENCED_INSTANCE_ID})
			if g.state == Stable && member.protocolsEqual(req.Protocols) {
				// Reconnect with unchanged protocols: no rebalance, cached
				// assignment is handed back through the usual SyncGroup.
				updateSession(member, req, sessionTimeout, rebalanceTimeout, now)
				return nil, g.joinResponse(member, protocol.NONE), memberID
			}
			updateSession(member, req, sessionTimeout, rebalanceTimeout, now)
		} else {
			member, memberID = t.admitNewLocked(g, req, sessionTimeout, rebalanceTimeout, now)
			isNew = true
		}
	case memberID == "":
		member, memberID = t.admitNewLocked(g, req, sessionTimeout, rebalanceTimeout, now)
		isNew = true
	default:
		member = g.members[memberID]
		if member == nil {
			return nil, &protocol.JoinGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID, MemberID: memberID}, ""
		}
		if req.GroupInstanceID != nil && !member.instanceMatches(req.GroupInstanceID) {
			return nil, &protocol.JoinGroupResponse{ErrorCode: protocol.FENCED_INSTANCE_ID, MemberID: memberID}, ""
		}
		if mapped, ok := lookupStatic(g, req.GroupInstanceID); ok && mapped != memberID {
			return nil, &protocol.JoinGroupResponse{ErrorCode: protocol.FENCED_INSTANCE_ID, MemberID: memberID}, ""
		}
		sameProtocols := member.protocolsEqual(req.Protocols)
		updateSession(member, req, sessionTimeout, rebalanceTimeout, now)
		if sameProtocols && g.state == Stable && memberID != g.leaderID {
			// Follower re-sent its join after the group already stabilized.
			return nil, g.joinResponse(member, protocol.NONE), memberID
		}
		if sameProtocols && g.state == CompletingRebalance {
			// The member missed the barrier-close response; replay it.
			return nil, g.joinResponse(member, protocol.NONE), memberID
		}
	}

	switch g.state {
	case Empty, Stable, CompletingRebalance:
		t.prepareRebalanceLocked(g, rebalanceReason(g.state, isNew))
	}
	wait := parkJoin(member)
	t.maybeCompleteJoinLocked(g)
	return wait, nil, memberID
}

func rebalanceReason(from State, isNew bool) string {
	switch {
	case from == Empty:
		return "first member joined"
	case isNew:
		return "new member joined"
	default:
		return "member rejoined with changed protocols"
	}
}

func lookupStatic(g *Group, instanceID *string) (string, bool) {
	if instanceID == nil {
		return "", false
	}
	mapped, ok := g.staticMembers[*instanceID]
	return mapped, ok
}

func (t *Table) admitNewLocked(g *Group, req *protocol.JoinGroupRequest, sessionTimeout, rebalanceTimeout time.Duration, now time.Time) (*MemberSession, string) {
	base := req.ClientID
	if req.GroupInstanceID != nil {
		base = *req.GroupInstanceID
	}
	memberID := g.newMemberID(base)
	member := &MemberSession{
		ID:        memberID,
		joinOrder: g.joinCounter,
	}
	g.joinCounter++
	if req.GroupInstanceID != nil {
		instance := *req.GroupInstanceID
		member.InstanceID = &instance
		g.staticMembers[instance] = memberID
	}
	updateSession(member, req, sessionTimeout, rebalanceTimeout, now)
	g.members[memberID] = member
	// New joiners stay pending until the barrier that admits them closes.
	g.pendingMembers[memberID] = struct{}{}
	return member, memberID
}

func updateSession(member *MemberSession, req *protocol.JoinGroupRequest, sessionTimeout, rebalanceTimeout time.Duration, now time.Time) {
	member.ClientID = req.ClientID
	member.ClientHost = req.ClientHost
	member.SessionTimeout = sessionTimeout
	member.RebalanceTimeout = rebalanceTimeout
	member.Protocols = append([]protocol.GroupProtocol(nil), req.Protocols...)
	member.LastHeartbeat = now
}

// parkJoin suspends the member's join; a stale suspended join from a
// retransmit is superseded first.
func parkJoin(member *MemberSession) chan *protocol.JoinGroupResponse {
	member.resolveJoin(&protocol.JoinGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID, MemberID: member.ID})
	wait := make(chan *protocol.JoinGroupResponse, 1)
	member.pendingJoin = wait
	member.awaitingJoin = false
	return wait
}

func parkSync(member *MemberSession) chan *protocol.SyncGroupResponse {
	member.resolveSync(&protocol.SyncGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID})
	wait := make(chan *protocol.SyncGroupResponse, 1)
	member.pendingSync = wait
	return wait
}

// abandonJoin handles a caller that gave up (connection dropped) while its
// join was parked: an implicit leave, unless the barrier already resolved.
func (t *Table) abandonJoin(groupID, memberID string, wait chan *protocol.JoinGroupResponse) *protocol.JoinGroupResponse {
	t.mu.Lock()
	select {
	case resp := <-wait:
		t.mu.Unlock()
		return resp
	default:
	}
	if g := t.groups[groupID]; g != nil {
		if member := g.members[memberID]; member != nil && member.pendingJoin == wait {
			member.pendingJoin = nil
			g.evict(member, protocol.UNKNOWN_MEMBER_ID)
			t.afterMembershipChangeLocked(g, "join abandoned")
			_ = t.appendLocked(g)
		}
	}
	t.mu.Unlock()
	return &protocol.JoinGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID, MemberID: memberID}
}

func (t *Table) abandonSync(groupID, memberID string, wait chan *protocol.SyncGroupResponse) *protocol.SyncGroupResponse {
	t.mu.Lock()
	select {
	case resp := <-wait:
		t.mu.Unlock()
		return resp
	default:
	}
	if g := t.groups[groupID]; g != nil {
		if member := g.members[memberID]; member != nil && member.pendingSync == wait {
			member.pendingSync = nil
			g.evict(member, protocol.UNKNOWN_MEMBER_ID)
			t.afterMembershipChangeLocked(g, "sync abandoned")
			_ = t.appendLocked(g)
		}
	}
	t.mu.Unlock()
	return &protocol.SyncGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID}
}

// SyncGroup records the leader's assignment and hands every member its own
// slice; followers suspend until the leader arrives.
func (t *Table) SyncGroup(ctx context.Context, req *protocol.SyncGroupRequest) *protocol.SyncGroupResponse {
	if code := t.gate(req.GroupID); code != protocol.NONE {
		return &protocol.SyncGroupResponse{ErrorCode: code}
	}

	t.mu.Lock()
	g := t.groups[req.GroupID]
	if g == nil {
		t.mu.Unlock()
		return &protocol.SyncGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID}
	}
	if code := g.fenceCheck(req.MemberID, req.GroupInstanceID); code != protocol.NONE {
		t.mu.Unlock()
		return &protocol.SyncGroupResponse{ErrorCode: code}
	}
	member := g.members[req.MemberID]
	if req.GenerationID != g.generation {
		t.mu.Unlock()
		return &protocol.SyncGroupResponse{ErrorCode: protocol.ILLEGAL_GENERATION}
	}
	member.LastHeartbeat = time.Now()

	switch g.state {
	case Empty, Dead:
		t.mu.Unlock()
		return &protocol.SyncGroupResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID}
	case PreparingRebalance:
		t.mu.Unlock()
		return &protocol.SyncGroupResponse{ErrorCode: protocol.REBALANCE_IN_PROGRESS}
	case Stable:
		resp := &protocol.SyncGroupResponse{
			ErrorCode:    protocol.NONE,
			ProtocolType: g.protocolType,
			ProtocolName: g.protocolName,
			Assignment:   append([]byte(nil), member.Assignment...),
		}
		t.mu.Unlock()
		return resp
	}

	// CompletingRebalance.
	if req.MemberID != g.leaderID {
		wait := parkSync(member)
		t.mu.Unlock()
		select {
		case resp := <-wait:
			return resp
		case <-ctx.Done():
			return t.abandonSync(req.GroupID, req.MemberID, wait)
		}
	}
	resp := t.completeSyncLocked(g, req)
	t.mu.Unlock()
	return resp
}

func (t *Table) completeSyncLocked(g *Group, req *protocol.SyncGroupRequest) *protocol.SyncGroupResponse {
	assignments := make(map[string][]byte, len(req.Assignments))
	for _, a := range req.Assignments {
		assignments[a.MemberID] = a.Assignment
	}
	if len(assignments) == 0 {
		computed, code := t.computeAssignmentsLocked(g)
		if code != protocol.NONE {
			return &protocol.SyncGroupResponse{ErrorCode: code}
		}
		assignments = computed
	}

	valid := len(assignments) == len(g.members)
	if valid {
		for id := range g.members {
			if _, ok := assignments[id]; !ok {
				valid = false
				break
			}
		}
	}
	if !valid {
		t.logger.Warn("leader assignment does not cover member set", "group", g.id, "generation", g.generation,
			"assigned", len(assignments), "members", len(g.members))
		t.prepareRebalanceLocked(g, "assignment member set mismatch")
		return &protocol.SyncGroupResponse{ErrorCode: protocol.REBALANCE_IN_PROGRESS}
	}

	for id, member := range g.members {
		member.Assignment = append([]byte(nil), assignments[id]...)
	}
	g.state = Stable
	if err := t.appendLocked(g); err != nil {
		for _, member := range g.members {
			member.Assignment = nil
			member.resolveSync(&protocol.SyncGroupResponse{ErrorCode: protocol.UNKNOWN_SERVER_ERROR})
		}
		g.state = CompletingRebalance
		return &protocol.SyncGroupResponse{ErrorCode: protocol.UNKNOWN_SERVER_ERROR}
	}
	if !g.rebalanceStarted.IsZero() {
		rebalanceSeconds.Observe(time.Since(g.rebalanceStarted).Seconds())
		g.rebalanceStarted = time.Time{}
	}
	t.logger.Info("group stabilized", "group", g.id, "generation", g.generation, "members", len(g.members), "protocol", g.protocolName)

	for id, member := range g.members {
		if id == req.MemberID {
			continue
		}
		member.resolveSync(&protocol.SyncGroupResponse{
			ErrorCode:    protocol.NONE,
			ProtocolType: g.protocolType,
			ProtocolName: g.protocolName,
			Assignment:   append([]byte(nil), member.Assignment...),
		})
	}
	leader := g.members[req.MemberID]
	return &protocol.SyncGroupResponse{
		ErrorCode:    protocol.NONE,
		ProtocolType: g.protocolType,
		ProtocolName: g.protocolName,
		Assignment:   append([]byte(nil), leader.Assignment...),
	}
}

// computeAssignmentsLocked runs the selected strategy server-side when the
// leader delegated assignment by syncing with an empty map.
func (t *Table) computeAssignmentsLocked(g *Group) (map[string][]byte, int16) {
	strategy, ok := t.assignors.Resolve(g.protocolName)
	if !ok {
		return nil, protocol.INCONSISTENT_GROUP_PROTOCOL
	}
	members := make([]assignor.Member, 0, len(g.members))
	topicSet := make(map[string]struct{})
	for _, id := range g.sortedMemberIDs() {
		member := g.members[id]
		sub, err := protocol.DecodeSubscription(member.metadataFor(g.protocolName))
		if err != nil {
			t.logger.Warn("undecodable subscription metadata", "group", g.id, "member", id, "error", err)
			return nil, protocol.UNKNOWN_SERVER_ERROR
		}
		members = append(members, assignor.Member{
			ID:         id,
			InstanceID: member.InstanceID,
			Topics:     sub.Topics,
			UserData:   sub.UserData,
		})
		for _, topic := range sub.Topics {
			topicSet[topic] = struct{}{}
		}
	}
	topics := make([]string, 0, len(topicSet))
	for topic := range topicSet {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.AppendTimeout)
	partitions, err := t.log.TopicPartitions(ctx, topics)
	cancel()
	if err != nil {
		t.logger.Error("topic partition lookup failed", "group", g.id, "error", err)
		return nil, protocol.UNKNOWN_SERVER_ERROR
	}
	for _, topic := range topics {
		if len(partitions[topic]) == 0 {
			partitions[topic] = []int32{0}
		}
	}
	assigned, err := strategy.Assign(members, partitions)
	if err != nil {
		t.logger.Error("assignment strategy failed", "group", g.id, "strategy", strategy.Name(), "error", err)
		return nil, protocol.UNKNOWN_SERVER_ERROR
	}
	out := make(map[string][]byte, len(assigned))
	for id, topicsAssigned := range assigned {
		out[id] = protocol.EncodeAssignment(&protocol.Assignment{Version: 0, Topics: topicsAssigned})
	}
	return out, protocol.NONE
}

// Heartbeat refreshes liveness; rebalances are signalled here since there is
// no push channel to clients.
func (t *Table) Heartbeat(req *protocol.HeartbeatRequest) *protocol.HeartbeatResponse {
	if code := t.gate(req.GroupID); code != protocol.NONE {
		return &protocol.HeartbeatResponse{ErrorCode: code}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.groups[req.GroupID]
	if g == nil {
		return &protocol.HeartbeatResponse{ErrorCode: protocol.UNKNOWN_MEMBER_ID}
	}
	if code := g.fenceCheck(req.MemberID, req.GroupInstanceID); code != protocol.NONE {
		return &protocol.HeartbeatResponse{ErrorCode: code}
	}
	member := g.members[req.MemberID]
	member.LastHeartbeat = time.Now()
	if g.state != Stable {
		return &protocol.HeartbeatResponse{ErrorCode: protocol.REBALANCE_IN_PROGRESS}
	}
	if req.GenerationID != g.generation {
		return &protocol.HeartbeatResponse{ErrorCode: protocol.ILLEGAL_GENERATION}
	}
	return &protocol.HeartbeatResponse{ErrorCode: protocol.NONE}
}

// LeaveGroup removes one or more members explicitly.
func (t *Table) LeaveGroup(req *protocol.LeaveGroupRequest) *protocol.LeaveGroupResponse {
	if code := t.gate(req.GroupID); code != protocol.NONE {
		return &protocol.LeaveGroupResponse{ErrorCode: code}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	resp := &protocol.LeaveGroupResponse{ErrorCode: protocol.NONE}
	g := t.groups[req.GroupID]
	removed := false
	for _, lm := range req.Members {
		result := protocol.LeaveGroupMemberResponse{MemberID: lm.MemberID, GroupInstanceID: lm.GroupInstanceID}
		if g == nil {
			result.ErrorCode = protocol.UNKNOWN_MEMBER_ID
			resp.Members = append(resp.Members, result)
			continue
		}
		memberID := lm.MemberID
		if memberID == "" {
			mapped, ok := lookupStatic(g, lm.GroupInstanceID)
			if !ok {
				result.ErrorCode = protocol.UNKNOWN_MEMBER_ID
				resp.Members = append(resp.Members, result)
				continue
			}
			memberID = mapped
		}
		if code := g.fenceCheck(memberID, lm.GroupInstanceID); code != protocol.NONE {
			result.ErrorCode = code
			resp.Members = append(resp.Members, result)
			continue
		}
		g.evict(g.members[memberID], protocol.UNKNOWN_MEMBER_ID)
		removed = true
		result.ErrorCode = protocol.NONE
		resp.Members = append(resp.Members, result)
	}
	if g != nil && removed {
		t.afterMembershipChangeLocked(g, "member left")
		if err := t.appendLocked(g); err != nil {
			resp.ErrorCode = protocol.UNKNOWN_SERVER_ERROR
		}
	}
	return resp
}

// ValidateOffsetCommit fences offset commits against live group state.
// Standalone consumers (empty member id, negative generation) bypass group
// membership as long as no generation-managed group is active under the id.
func (t *Table) ValidateOffsetCommit(req *protocol.OffsetCommitRequest) int16 {
	if code := t.gate(req.GroupID); code != protocol.NONE {
		return code
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.groups[req.GroupID]
	standalone := req.MemberID == "" && req.GenerationID < 0
	if g == nil || g.state == Dead {
		if standalone {
			return protocol.NONE
		}
		return protocol.ILLEGAL_GENERATION
	}
	if standalone {
		if g.state == Empty {
			return protocol.NONE
		}
		return protocol.UNKNOWN_MEMBER_ID
	}
	if code := g.fenceCheck(req.MemberID, req.GroupInstanceID); code != protocol.NONE {
		return code
	}
	if req.GenerationID != g.generation {
		return protocol.ILLEGAL_GENERATION
	}
	if g.state == PreparingRebalance || g.state == CompletingRebalance {
		return protocol.REBALANCE_IN_PROGRESS
	}
	g.members[req.MemberID].LastHeartbeat = time.Now()
	return protocol.NONE
}

// Describe reports a group's live state.
func (t *Table) Describe(groupID string) protocol.DescribeGroupsGroup {
	out := protocol.DescribeGroupsGroup{GroupID: groupID}
	if code := t.gate(groupID); code != protocol.NONE {
		out.ErrorCode = code
		return out
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.groups[groupID]
	if g == nil {
		out.ErrorCode = protocol.GROUP_ID_NOT_FOUND
		out.State = Dead.String()
		return out
	}
	out.State = g.state.String()
	out.ProtocolType = g.protocolType
	if g.state == Stable {
		out.Protocol = g.protocolName
	}
	for _, id := range g.sortedMemberIDs() {
		member := g.members[id]
		entry := protocol.DescribeGroupsMember{
			MemberID:        id,
			GroupInstanceID: member.InstanceID,
			ClientID:        member.ClientID,
			ClientHost:      member.ClientHost,
		}
		if g.state == Stable {
			entry.Metadata = member.metadataFor(g.protocolName)
			entry.Assignment = append([]byte(nil), member.Assignment...)
		}
		out.Members = append(out.Members, entry)
	}
	return out
}

// List enumerates this table's groups, optionally filtered by state.
func (t *Table) List(statesFilter []string) []protocol.ListGroupsGroup {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.ListGroupsGroup, 0, len(t.groups))
	for id, g := range t.groups {
		if !matchesState(g.state, statesFilter) {
			continue
		}
		protocolType := g.protocolType
		if protocolType == "" {
			protocolType = "consumer"
		}
		out = append(out, protocol.ListGroupsGroup{
			GroupID:      id,
			ProtocolType: protocolType,
			GroupState:   g.state.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

func matchesState(state State, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, filter := range filters {
		if strings.EqualFold(filter, state.String()) {
			return true
		}
	}
	return false
}

// Delete tombstones an Empty group and drops its committed offsets.
func (t *Table) Delete(ctx context.Context, groupID string) int16 {
	if code := t.gate(groupID); code != protocol.NONE {
		return code
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.groups[groupID]
	if g == nil {
		return protocol.GROUP_ID_NOT_FOUND
	}
	if len(g.members) > 0 {
		return protocol.NON_EMPTY_GROUP
	}
	g.state = Dead
	g.stopBarrierTimer()
	if err := t.log.Tombstone(ctx, groupID); err != nil {
		t.logger.Error("tombstone failed", "group", groupID, "error", err)
		return protocol.UNKNOWN_SERVER_ERROR
	}
	if err := t.log.DeleteOffsets(ctx, groupID); err != nil {
		t.logger.Error("offset cleanup failed", "group", groupID, "error", err)
	}
	delete(t.groups, groupID)
	return protocol.NONE
}

// prepareRebalanceLocked opens a new join barrier. Parked syncs are told to
// rejoin; every carried-over member must rejoin before the barrier closes.
func (t *Table) prepareRebalanceLocked(g *Group, reason string) {
	if g.state == PreparingRebalance || g.state == Dead {
		return
	}
	fromEmpty := g.state == Empty
	for _, member := range g.members {
		member.resolveSync(&protocol.SyncGroupResponse{ErrorCode: protocol.REBALANCE_IN_PROGRESS})
	}
	g.state = PreparingRebalance
	g.rebalanceStarted = time.Now()
	g.emptySince = time.Time{}
	prior := 0
	for id, member := range g.members {
		if _, pending := g.pendingMembers[id]; pending {
			continue
		}
		member.awaitingJoin = true
		prior++
	}
	g.priorMembers = prior

	timeout := g.maxRebalanceTimeout(t.cfg.DefaultRebalanceTimeout)
	if fromEmpty && t.cfg.InitialRebalanceDelay < timeout {
		// Brand-new membership: hold the barrier briefly so the initial wave
		// of joiners lands in one generation instead of one rebalance each.
		timeout = t.cfg.InitialRebalanceDelay
	}
	t.armBarrierLocked(g, timeout)
	rebalancesStarted.Inc()
	t.logger.Info("preparing rebalance", "group", g.id, "generation", g.generation, "reason", reason, "members", len(g.members))
}

func (t *Table) armBarrierLocked(g *Group, timeout time.Duration) {
	g.stopBarrierTimer()
	g.barrierEpoch++
	epoch := g.barrierEpoch
	g.barrierDeadline = time.Now().Add(timeout)
	g.barrierTimer = time.AfterFunc(timeout, func() { t.onBarrierExpired(g.id, epoch) })
}

func (t *Table) onBarrierExpired(groupID string, epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.groups[groupID]
	if g == nil || g.state != PreparingRebalance || g.barrierEpoch != epoch {
		return
	}
	t.completeJoinLocked(g)
}

// maybeCompleteJoinLocked closes the barrier early once every carried-over
// member has rejoined. A barrier with no carried-over members (a previously
// empty group) closes only on its deadline.
func (t *Table) maybeCompleteJoinLocked(g *Group) {
	if g.state != PreparingRebalance || g.priorMembers == 0 {
		return
	}
	if g.awaitingJoinCount() == 0 {
		t.completeJoinLocked(g)
	}
}

// completeJoinLocked closes the join barrier: stragglers are dropped, the
// generation advances exactly once, a leader and protocol are fixed, and
// every parked join resolves after the new generation's record is durable.
func (t *Table) completeJoinLocked(g *Group) {
	g.stopBarrierTimer()
	now := time.Now()
	for _, id := range g.sortedMemberIDs() {
		member := g.members[id]
		if member.awaitingJoin {
			t.logger.Info("dropping member that missed the rebalance", "group", g.id, "member", id)
			g.evict(member, protocol.UNKNOWN_MEMBER_ID)
			membersExpired.Inc()
		}
	}
	for id := range g.pendingMembers {
		delete(g.pendingMembers, id)
	}
	g.generation++

	if len(g.members) == 0 {
		g.state = Empty
		g.leaderID = ""
		g.protocolName = ""
		g.emptySince = now
		_ = t.appendLocked(g)
		t.logger.Info("rebalance completed with no members", "group", g.id, "generation", g.generation)
		return
	}

	g.electLeader()
	g.protocolName = g.selectProtocol()
	if g.protocolName == "" {
		// Join-time validation keeps a common protocol; losing it here means
		// the survivors diverged, so the group resets.
		for _, id := range g.sortedMemberIDs() {
			g.evict(g.members[id], protocol.INCONSISTENT_GROUP_PROTOCOL)
		}
		g.state = Empty
		g.leaderID = ""
		g.emptySince = now
		_ = t.appendLocked(g)
		return
	}

	g.state = CompletingRebalance
	for _, member := range g.members {
		member.Assignment = nil
	}
	code := protocol.NONE
	if err := t.appendLocked(g); err != nil {
		code = protocol.UNKNOWN_SERVER_ERROR
	}
	for _, id := range g.sortedMemberIDs() {
		member := g.members[id]
		member.resolveJoin(g.joinResponse(member, code))
	}
	t.logger.Info("join barrier closed", "group", g.id, "generation", g.generation, "leader", g.leaderID,
		"protocol", g.protocolName, "members", len(g.members))
}

func (t *Table) afterMembershipChangeLocked(g *Group, reason string) {
	if g.state == Dead {
		return
	}
	if len(g.members) == 0 {
		g.stopBarrierTimer()
		if g.state != Empty {
			// Losing the last member still cuts a new (empty) generation so
			// fenced stragglers cannot resume under the old one.
			g.generation++
			g.state = Empty
			g.leaderID = ""
			g.protocolName = ""
			g.emptySince = time.Now()
		}
		return
	}
	switch g.state {
	case Stable, CompletingRebalance:
		t.prepareRebalanceLocked(g, reason)
	case PreparingRebalance:
		t.maybeCompleteJoinLocked(g)
	}
}

// appendLocked persists the group's current snapshot. Callers release client
// responses only after this returns.
func (t *Table) appendLocked(g *Group) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.AppendTimeout)
	defer cancel()
	if err := t.log.Append(ctx, g.record(time.Now())); err != nil {
		logAppendErrors.Inc()
		t.logger.Error("group record append failed", "group", g.id, "error", err)
		return err
	}
	return nil
}

func (t *Table) sweepLoop() {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.stopCh:
			return
		}
	}
}

// sweep expires silent members and retires groups that stayed empty past the
// grace period. Suspended members are exempt: their parked request is the
// heartbeat, and the barrier deadline already bounds it.
func (t *Table) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	groupsLive.WithLabelValues(strconv.Itoa(t.shard)).Set(float64(len(t.groups)))
	for id, g := range t.groups {
		var expired []*MemberSession
		for _, member := range g.members {
			if member.pendingJoin != nil || member.pendingSync != nil {
				continue
			}
			if g.state == PreparingRebalance && member.awaitingJoin {
				continue
			}
			if now.Sub(member.LastHeartbeat) > member.SessionTimeout {
				expired = append(expired, member)
			}
		}
		if len(expired) > 0 {
			for _, member := range expired {
				t.logger.Info("expiring member on session timeout", "group", id, "member", member.ID)
				g.evict(member, protocol.UNKNOWN_MEMBER_ID)
				membersExpired.Inc()
			}
			t.afterMembershipChangeLocked(g, "session timeout")
			_ = t.appendLocked(g)
		}
		if g.state == Empty && !g.emptySince.IsZero() && now.Sub(g.emptySince) > t.cfg.EmptyGroupTTL {
			g.state = Dead
			g.stopBarrierTimer()
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.AppendTimeout)
			if err := t.log.Tombstone(ctx, id); err != nil {
				t.logger.Error("tombstone failed", "group", id, "error", err)
				g.state = Empty
				cancel()
				continue
			}
			_ = t.log.DeleteOffsets(ctx, id)
			cancel()
			delete(t.groups, id)
			t.logger.Info("retired empty group", "group", id)
		}
	}
}
