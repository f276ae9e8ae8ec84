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
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/novatechflow/convene/pkg/grouplog"
	"github.com/novatechflow/convene/pkg/protocol"
)

// State is a group's position in the rebalance state machine.
type State int8

const (
	Empty State = iota
	PreparingRebalance
	CompletingRebalance
	Stable
	Dead
)

func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case PreparingRebalance:
		return "PreparingRebalance"
	case CompletingRebalance:
		return "CompletingRebalance"
	case Stable:
		return "Stable"
	case Dead:
		return "Dead"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

func parseState(s string) State {
	switch s {
	case "PreparingRebalance":
		return PreparingRebalance
	case "CompletingRebalance":
		return CompletingRebalance
	case "Stable":
		return Stable
	case "Dead":
		return Dead
	default:
		return Empty
	}
}

// Group is the per-group state machine. All fields are guarded by the owning
// table's lock; a Group never escapes its table.
type Group struct {
	id string

	state        State
	generation   int32
	protocolType string
	protocolName string
	leaderID     string

	members        map[string]*MemberSession
	pendingMembers map[string]struct{}
	// staticMembers maps group instance id to the member id currently
	// holding it; a rejoin under the same instance id reuses the session.
	staticMembers map[string]string

	joinCounter int64

	// barrierEpoch distinguishes the current join barrier from stale timer
	// callbacks of earlier barriers.
	barrierEpoch    uint64
	barrierDeadline time.Time
	barrierTimer    *time.Timer
	// priorMembers counts members carried into the current barrier; when it
	// is zero only the deadline can close the barrier.
	priorMembers int

	rebalanceStarted time.Time
	emptySince       time.Time
}

func newGroup(id string, now time.Time) *Group {
	return &Group{
		id:             id,
		state:          Empty,
		members:        make(map[string]*MemberSession),
		pendingMembers: make(map[string]struct{}),
		staticMembers:  make(map[string]string),
		emptySince:     now,
	}
}

func (g *Group) newMemberID(base string) string {
	if base == "" {
		base = g.id
	}
	return fmt.Sprintf("%s-%d", base, rand.Int63())
}

func (g *Group) sortedMemberIDs() []string {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// hasCommonProtocol reports whether at least one protocol name is supported
// by every current member and by the offered preference list.
func (g *Group) hasCommonProtocol(offered []protocol.GroupProtocol) bool {
	for _, p := range offered {
		supported := true
		for _, member := range g.members {
			if !member.supports(p.Name) {
				supported = false
				break
			}
		}
		if supported {
			return true
		}
	}
	return false
}

// selectProtocol picks the name with unanimous support, preferring the one
// ranked highest by the largest number of members. Ties break toward the
// lexicographically smaller name so selection is deterministic.
func (g *Group) selectProtocol() string {
	candidates := make(map[string]struct{})
	first := true
	for _, member := range g.members {
		if first {
			for _, p := range member.Protocols {
				candidates[p.Name] = struct{}{}
			}
			first = false
			continue
		}
		for name := range candidates {
			if !member.supports(name) {
				delete(candidates, name)
			}
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	votes := make(map[string]int, len(candidates))
	for _, member := range g.members {
		if choice := member.vote(candidates); choice != "" {
			votes[choice]++
		}
	}
	var winner string
	var best int
	for name := range candidates {
		count := votes[name]
		if count > best || (count == best && (winner == "" || name < winner)) {
			winner = name
			best = count
		}
	}
	return winner
}

// electLeader fixes the leader to the earliest joiner still present.
func (g *Group) electLeader() {
	g.leaderID = ""
	var bestOrder int64
	for id, member := range g.members {
		if g.leaderID == "" || member.joinOrder < bestOrder {
			g.leaderID = id
			bestOrder = member.joinOrder
		}
	}
}

// awaitingJoinCount counts members that have not rejoined the open barrier.
func (g *Group) awaitingJoinCount() int {
	count := 0
	for _, member := range g.members {
		if member.awaitingJoin {
			count++
		}
	}
	return count
}

// maxRebalanceTimeout is the barrier deadline source: the slowest member's
// negotiated rebalance timeout.
func (g *Group) maxRebalanceTimeout(fallback time.Duration) time.Duration {
	max := time.Duration(0)
	for _, member := range g.members {
		if member.RebalanceTimeout > max {
			max = member.RebalanceTimeout
		}
	}
	if max <= 0 {
		return fallback
	}
	return max
}

// evict removes a member and releases anything parked on it.
func (g *Group) evict(member *MemberSession, code int16) {
	member.resolveJoin(&protocol.JoinGroupResponse{ErrorCode: code, MemberID: member.ID})
	member.resolveSync(&protocol.SyncGroupResponse{ErrorCode: code})
	delete(g.members, member.ID)
	delete(g.pendingMembers, member.ID)
	if member.InstanceID != nil && g.staticMembers[*member.InstanceID] == member.ID {
		delete(g.staticMembers, *member.InstanceID)
	}
	if g.leaderID == member.ID {
		g.leaderID = ""
	}
}

// fenceCheck validates a request's member identity. A static instance id
// mapped to a different member id means a newer incarnation took over.
func (g *Group) fenceCheck(memberID string, instanceID *string) int16 {
	if instanceID != nil {
		if mapped, ok := g.staticMembers[*instanceID]; ok && memberID != "" && mapped != memberID {
			return protocol.FENCED_INSTANCE_ID
		}
	}
	member := g.members[memberID]
	if member == nil {
		return protocol.UNKNOWN_MEMBER_ID
	}
	if instanceID != nil && !member.instanceMatches(instanceID) {
		return protocol.FENCED_INSTANCE_ID
	}
	return protocol.NONE
}

func (g *Group) stopBarrierTimer() {
	if g.barrierTimer != nil {
		g.barrierTimer.Stop()
		g.barrierTimer = nil
	}
}

// memberList is the leader's view of the generation: every member with its
// metadata for the selected protocol.
func (g *Group) memberList() []protocol.JoinGroupMember {
	ids := g.sortedMemberIDs()
	members := make([]protocol.JoinGroupMember, 0, len(ids))
	for _, id := range ids {
		member := g.members[id]
		members = append(members, protocol.JoinGroupMember{
			MemberID:        id,
			GroupInstanceID: member.InstanceID,
			Metadata:        member.metadataFor(g.protocolName),
		})
	}
	return members
}

// joinResponse builds the response for the group's current generation.
func (g *Group) joinResponse(member *MemberSession, code int16) *protocol.JoinGroupResponse {
	resp := &protocol.JoinGroupResponse{
		ErrorCode:    code,
		GenerationID: g.generation,
		ProtocolType: g.protocolType,
		ProtocolName: g.protocolName,
		LeaderID:     g.leaderID,
		MemberID:     member.ID,
	}
	if code == protocol.NONE && member.ID == g.leaderID {
		resp.Members = g.memberList()
	}
	return resp
}

// record snapshots the group for the persistent log.
func (g *Group) record(now time.Time) *grouplog.GroupRecord {
	record := &grouplog.GroupRecord{
		GroupID:      g.id,
		State:        g.state.String(),
		ProtocolType: g.protocolType,
		Protocol:     g.protocolName,
		Leader:       g.leaderID,
		Generation:   g.generation,
		UpdatedAt:    now.UTC().Format(time.RFC3339Nano),
	}
	if len(g.members) == 0 {
		return record
	}
	record.Members = make(map[string]*grouplog.MemberRecord, len(g.members))
	for id, member := range g.members {
		entry := &grouplog.MemberRecord{
			ClientID:           member.ClientID,
			ClientHost:         member.ClientHost,
			SessionTimeoutMs:   int32(member.SessionTimeout / time.Millisecond),
			RebalanceTimeoutMs: int32(member.RebalanceTimeout / time.Millisecond),
			Assignment:         append([]byte(nil), member.Assignment...),
		}
		if member.InstanceID != nil {
			instance := *member.InstanceID
			entry.InstanceID = &instance
		}
		if !member.LastHeartbeat.IsZero() {
			entry.HeartbeatAt = member.LastHeartbeat.UTC().Format(time.RFC3339Nano)
		}
		entry.Protocols = make([]grouplog.ProtocolRecord, 0, len(member.Protocols))
		for _, p := range member.Protocols {
			entry.Protocols = append(entry.Protocols, grouplog.ProtocolRecord{
				Name:     p.Name,
				Metadata: append([]byte(nil), p.Metadata...),
			})
		}
		record.Members[id] = entry
	}
	return record
}

// restoreGroup rebuilds a group from its replayed snapshot. Groups caught
// mid-rebalance come back as PreparingRebalance: every member must rejoin
// before a new generation is cut. Heartbeats restart from load time so
// surviving members get a full session window to reconnect.
func restoreGroup(record *grouplog.GroupRecord, defaultRebalanceTimeout time.Duration, now time.Time) *Group {
	g := newGroup(record.GroupID, now)
	g.generation = record.Generation
	g.protocolType = record.ProtocolType
	g.protocolName = record.Protocol
	g.leaderID = record.Leader
	g.state = parseState(record.State)

	ids := make([]string, 0, len(record.Members))
	for id := range record.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := record.Members[id]
		member := &MemberSession{
			ID:             id,
			ClientID:       entry.ClientID,
			ClientHost:     entry.ClientHost,
			SessionTimeout: time.Duration(entry.SessionTimeoutMs) * time.Millisecond,
			LastHeartbeat:  now,
		}
		if entry.RebalanceTimeoutMs > 0 {
			member.RebalanceTimeout = time.Duration(entry.RebalanceTimeoutMs) * time.Millisecond
		} else {
			member.RebalanceTimeout = defaultRebalanceTimeout
		}
		if entry.InstanceID != nil {
			instance := *entry.InstanceID
			member.InstanceID = &instance
			g.staticMembers[instance] = id
		}
		member.Protocols = make([]protocol.GroupProtocol, 0, len(entry.Protocols))
		for _, p := range entry.Protocols {
			member.Protocols = append(member.Protocols, protocol.GroupProtocol{
				Name:     p.Name,
				Metadata: append([]byte(nil), p.Metadata...),
			})
		}
		member.Assignment = append([]byte(nil), entry.Assignment...)
		member.joinOrder = g.joinCounter
		if id == record.Leader {
			member.joinOrder = -1
		}
		g.joinCounter++
		g.members[id] = member
	}

	switch g.state {
	case PreparingRebalance, CompletingRebalance:
		g.state = PreparingRebalance
		g.priorMembers = len(g.members)
		for _, member := range g.members {
			member.awaitingJoin = true
			member.Assignment = nil
		}
	case Empty, Dead:
		g.state = Empty
		g.emptySince = now
	}
	if len(g.members) == 0 {
		g.state = Empty
		g.emptySince = now
	}
	return g
}
