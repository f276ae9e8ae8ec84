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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryLog is an in-process Log for tests and single-node development.
type MemoryLog struct {
	mu       sync.RWMutex
	groups   map[string]*GroupRecord
	offsets  map[string]offsetEntry
	topics   map[string][]int32
	appends  int
	failNext error
}

type offsetEntry struct {
	offset   int64
	metadata string
}

// NewMemoryLog builds an empty in-memory group log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		groups:  make(map[string]*GroupRecord),
		offsets: make(map[string]offsetEntry),
		topics:  make(map[string][]int32),
	}
}

// SetTopic registers partition metadata served by TopicPartitions.
func (l *MemoryLog) SetTopic(name string, partitions []int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.topics[name] = append([]int32(nil), partitions...)
}

// FailNextAppend makes the next Append return err, for durability tests.
func (l *MemoryLog) FailNextAppend(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Appends reports how many appends (including tombstones) have been accepted.
func (l *MemoryLog) Appends() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.appends
}

// Record returns the current snapshot for a group, or nil.
func (l *MemoryLog) Record(groupID string) *GroupRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneRecord(l.groups[groupID])
}

// Append implements Log.
func (l *MemoryLog) Append(ctx context.Context, record *GroupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil || record.GroupID == "" {
		return fmt.Errorf("group record requires a group id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return err
	}
	l.groups[record.GroupID] = cloneRecord(record)
	l.appends++
	return nil
}

// Tombstone implements Log.
func (l *MemoryLog) Tombstone(ctx context.Context, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.groups, groupID)
	l.appends++
	return nil
}

// Replay implements Log.
func (l *MemoryLog) Replay(ctx context.Context, owns func(groupID string) bool) ([]*GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.groups))
	for id := range l.groups {
		if owns == nil || owns(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	records := make([]*GroupRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, cloneRecord(l.groups[id]))
	}
	return records, nil
}

// CommitOffset implements Log.
func (l *MemoryLog) CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64, metadata string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offsets[offsetMapKey(group, topic, partition)] = offsetEntry{offset: offset, metadata: metadata}
	return nil
}

// FetchOffset implements Log.
func (l *MemoryLog) FetchOffset(ctx context.Context, group, topic string, partition int32) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return -1, "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.offsets[offsetMapKey(group, topic, partition)]
	if !ok {
		return -1, "", nil
	}
	return entry.offset, entry.metadata, nil
}

// DeleteOffsets implements Log.
func (l *MemoryLog) DeleteOffsets(ctx context.Context, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := group + ":"
	for key := range l.offsets {
		if strings.HasPrefix(key, prefix) {
			delete(l.offsets, key)
		}
	}
	return nil
}

// TopicPartitions implements Log.
func (l *MemoryLog) TopicPartitions(ctx context.Context, topics []string) (map[string][]int32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]int32, len(topics))
	for _, topic := range topics {
		if partitions, ok := l.topics[topic]; ok {
			out[topic] = append([]int32(nil), partitions...)
		}
	}
	return out, nil
}

func offsetMapKey(group, topic string, partition int32) string {
	return fmt.Sprintf("%s:%s:%d", group, topic, partition)
}
