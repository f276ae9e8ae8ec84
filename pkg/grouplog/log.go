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

// Package grouplog persists consumer group state. The log is compacted by
// construction: each group maps to a single record that is overwritten on
// every transition and deleted by a tombstone, so replay reads only the
// current record per group.
package grouplog

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("group log unavailable")
	// ErrReplayCorrupt indicates an unreadable record during replay. This is
	// the only fatal condition in the package; shard startup must halt on it.
	ErrReplayCorrupt = errors.New("group log replay: corrupt record")
)

// ProtocolRecord is one persisted entry of a member's protocol preferences.
type ProtocolRecord struct {
	Name     string `json:"name"`
	Metadata []byte `json:"metadata,omitempty"`
}

// MemberRecord is the persisted form of a member session.
type MemberRecord struct {
	InstanceID         *string          `json:"instance_id,omitempty"`
	ClientID           string           `json:"client_id,omitempty"`
	ClientHost         string           `json:"client_host,omitempty"`
	SessionTimeoutMs   int32            `json:"session_timeout_ms,omitempty"`
	RebalanceTimeoutMs int32            `json:"rebalance_timeout_ms,omitempty"`
	Protocols          []ProtocolRecord `json:"protocols,omitempty"`
	Assignment         []byte           `json:"assignment,omitempty"`
	HeartbeatAt        string           `json:"heartbeat_at,omitempty"`
}

// GroupRecord is the persisted snapshot of a group. Appending a record with
// the same group id replaces the previous snapshot.
type GroupRecord struct {
	GroupID      string                   `json:"group_id"`
	State        string                   `json:"state"`
	ProtocolType string                   `json:"protocol_type,omitempty"`
	Protocol     string                   `json:"protocol,omitempty"`
	Leader       string                   `json:"leader,omitempty"`
	Generation   int32                    `json:"generation"`
	Members      map[string]*MemberRecord `json:"members,omitempty"`
	UpdatedAt    string                   `json:"updated_at,omitempty"`
}

// Log is the durable group-state collaborator consumed by the coordinator.
// Append and Tombstone return only once the write is durable; the caller is
// responsible for releasing client responses only after that.
type Log interface {
	// Append durably writes the current snapshot for record.GroupID.
	Append(ctx context.Context, record *GroupRecord) error
	// Tombstone durably removes the snapshot for a deleted group.
	Tombstone(ctx context.Context, groupID string) error
	// Replay returns the current snapshot of every group accepted by owns.
	Replay(ctx context.Context, owns func(groupID string) bool) ([]*GroupRecord, error)
	// CommitOffset persists a committed consumer offset.
	CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64, metadata string) error
	// FetchOffset returns the committed offset and metadata, or -1 when none.
	FetchOffset(ctx context.Context, group, topic string, partition int32) (int64, string, error)
	// DeleteOffsets removes all committed offsets for a group.
	DeleteOffsets(ctx context.Context, group string) error
	// TopicPartitions reports the known partition ids for each topic. Topics
	// with no recorded metadata are omitted from the result.
	TopicPartitions(ctx context.Context, topics []string) (map[string][]int32, error)
}

func cloneRecord(record *GroupRecord) *GroupRecord {
	if record == nil {
		return nil
	}
	out := *record
	if record.Members != nil {
		out.Members = make(map[string]*MemberRecord, len(record.Members))
		for id, member := range record.Members {
			cloned := *member
			cloned.Protocols = append([]ProtocolRecord(nil), member.Protocols...)
			cloned.Assignment = append([]byte(nil), member.Assignment...)
			if member.InstanceID != nil {
				instance := *member.InstanceID
				cloned.InstanceID = &instance
			}
			out.Members[id] = &cloned
		}
	}
	return &out
}
