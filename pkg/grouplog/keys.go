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

package grouplog

import (
	"fmt"
	"strings"
)

const (
	groupPrefix = "/convene/groups"
	topicPrefix = "/convene/topics"
)

// GroupRecordKey returns the etcd key holding a group's snapshot.
func GroupRecordKey(groupID string) string {
	return fmt.Sprintf("%s/%s/metadata", groupPrefix, groupID)
}

// GroupRecordPrefix returns the etcd prefix covering all group snapshots.
func GroupRecordPrefix() string {
	return groupPrefix + "/"
}

// ParseGroupRecordKey extracts a group id from a snapshot key.
func ParseGroupRecordKey(key string) (string, bool) {
	prefix := groupPrefix + "/"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, "/metadata") {
		return "", false
	}
	groupID := strings.TrimSuffix(strings.TrimPrefix(key, prefix), "/metadata")
	if groupID == "" || strings.Contains(groupID, "/") {
		return "", false
	}
	return groupID, true
}

// OffsetKey returns the etcd key holding one committed offset.
func OffsetKey(groupID, topic string, partition int32) string {
	return fmt.Sprintf("%s/%s/offsets/%s/%d", groupPrefix, groupID, topic, partition)
}

// OffsetPrefix returns the etcd prefix covering a group's committed offsets.
func OffsetPrefix(groupID string) string {
	return fmt.Sprintf("%s/%s/offsets/", groupPrefix, groupID)
}

// PartitionStateKey returns the etcd key for one partition's state object.
func PartitionStateKey(topic string, partition int32) string {
	return fmt.Sprintf("%s/%s/partitions/%d", topicPrefix, topic, partition)
}

// partitionStatePrefix covers all partition state objects of a topic.
func partitionStatePrefix(topic string) string {
	return fmt.Sprintf("%s/%s/partitions/", topicPrefix, topic)
}
