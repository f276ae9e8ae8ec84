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
	"bytes"
	"time"

	"github.com/novatechflow/convene/pkg/protocol"
)

// MemberSession is the per-client liveness and protocol-preference record
// within a group. The group exclusively owns its sessions; nothing outside
// the owning table holds a reference to one.
type MemberSession struct {
	ID         string
	InstanceID *string
	ClientID   string
	ClientHost string

	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration

	// Protocols is the member's preference-ordered protocol list.
	Protocols []protocol.GroupProtocol

	// Assignment holds the opaque bytes computed for the current generation;
	// empty until the rebalance that elected this generation completes.
	Assignment []byte

	LastHeartbeat time.Time

	// joinOrder is assigned once when the session is created and orders
	// leader election: the earliest joiner still present leads.
	joinOrder int64

	// awaitingJoin marks a member that has not yet rejoined the barrier of
	// the in-progress rebalance.
	awaitingJoin bool

	// At most one suspended response of each kind per member. Channels are
	// buffered so resolution never blocks the table.
	pendingJoin chan *protocol.JoinGroupResponse
	pendingSync chan *protocol.SyncGroupResponse
}

// resolveJoin releases a parked JoinGroup response exactly once.
func (m *MemberSession) resolveJoin(resp *protocol.JoinGroupResponse) {
	if m.pendingJoin != nil {
		m.pendingJoin <- resp
		m.pendingJoin = nil
	}
}

// resolveSync releases a parked SyncGroup response exactly once.
func (m *MemberSession) resolveSync(resp *protocol.SyncGroupResponse) {
	if m.pendingSync != nil {
		m.pendingSync <- resp
		m.pendingSync = nil
	}
}

// supports reports whether the member lists the protocol name.
func (m *MemberSession) supports(name string) bool {
	for _, p := range m.Protocols {
		if p.Name == name {
			return true
		}
	}
	return false
}

// metadataFor returns the metadata bytes the member attached to a protocol.
func (m *MemberSession) metadataFor(name string) []byte {
	for _, p := range m.Protocols {
		if p.Name == name {
			return p.Metadata
		}
	}
	return nil
}

// vote returns the member's most preferred protocol among the candidates.
func (m *MemberSession) vote(candidates map[string]struct{}) string {
	for _, p := range m.Protocols {
		if _, ok := candidates[p.Name]; ok {
			return p.Name
		}
	}
	return ""
}

// protocolsEqual reports whether the offered protocol list is byte-identical
// to the stored one. Any difference disqualifies the static fast path.
func (m *MemberSession) protocolsEqual(offered []protocol.GroupProtocol) bool {
	if len(m.Protocols) != len(offered) {
		return false
	}
	for i := range offered {
		if m.Protocols[i].Name != offered[i].Name {
			return false
		}
		if !bytes.Equal(m.Protocols[i].Metadata, offered[i].Metadata) {
			return false
		}
	}
	return true
}

// instanceMatches checks a request's claimed instance id against the session.
func (m *MemberSession) instanceMatches(claimed *string) bool {
	if m.InstanceID == nil && claimed == nil {
		return true
	}
	if m.InstanceID == nil || claimed == nil {
		return false
	}
	return *m.InstanceID == *claimed
}
