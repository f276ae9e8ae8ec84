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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdOpTimeout = 3 * time.Second

// EtcdConfig defines how the log connects to etcd.
type EtcdConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// EtcdLog stores group snapshots and committed offsets in etcd. One key per
// group keeps the log compacted; writes are durable once etcd acknowledges.
type EtcdLog struct {
	client *clientv3.Client
}

type offsetRecord struct {
	Offset      int64  `json:"offset"`
	Metadata    string `json:"metadata,omitempty"`
	CommittedAt string `json:"committed_at"`
}

// NewEtcdLog connects to etcd and returns a Log backed by it.
func NewEtcdLog(cfg EtcdConfig) (*EtcdLog, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdLog{client: cli}, nil
}

// Close releases the etcd client.
func (l *EtcdLog) Close() error {
	return l.client.Close()
}

// Append implements Log.
func (l *EtcdLog) Append(ctx context.Context, record *GroupRecord) error {
	if record == nil || record.GroupID == "" {
		return errors.New("group record requires a group id")
	}
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode group record %s: %w", record.GroupID, err)
	}
	if _, err := l.client.Put(ctx, GroupRecordKey(record.GroupID), string(payload)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Tombstone implements Log.
func (l *EtcdLog) Tombstone(ctx context.Context, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	if _, err := l.client.Delete(ctx, GroupRecordKey(groupID)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Replay implements Log. A record that fails to decode is fatal: the caller
// must not serve a shard whose state cannot be fully reconstructed.
func (l *EtcdLog) Replay(ctx context.Context, owns func(groupID string) bool) ([]*GroupRecord, error) {
	resp, err := l.client.Get(ctx, GroupRecordPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var records []*GroupRecord
	for _, kv := range resp.Kvs {
		groupID, ok := ParseGroupRecordKey(string(kv.Key))
		if !ok {
			continue
		}
		if owns != nil && !owns(groupID) {
			continue
		}
		record := &GroupRecord{}
		if err := json.Unmarshal(kv.Value, record); err != nil {
			return nil, fmt.Errorf("%w: group %s: %v", ErrReplayCorrupt, groupID, err)
		}
		if record.GroupID == "" {
			record.GroupID = groupID
		}
		records = append(records, record)
	}
	return records, nil
}

// CommitOffset implements Log.
func (l *EtcdLog) CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64, metadata string) error {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	payload, err := json.Marshal(offsetRecord{
		Offset:      offset,
		Metadata:    metadata,
		CommittedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if _, err := l.client.Put(ctx, OffsetKey(group, topic, partition), string(payload)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FetchOffset implements Log.
func (l *EtcdLog) FetchOffset(ctx context.Context, group, topic string, partition int32) (int64, string, error) {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	resp, err := l.client.Get(ctx, OffsetKey(group, topic, partition))
	if err != nil {
		return -1, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Kvs) == 0 {
		return -1, "", nil
	}
	var record offsetRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &record); err != nil {
		return -1, "", fmt.Errorf("decode offset for %s/%s/%d: %w", group, topic, partition, err)
	}
	return record.Offset, record.Metadata, nil
}

// DeleteOffsets implements Log.
func (l *EtcdLog) DeleteOffsets(ctx context.Context, group string) error {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	if _, err := l.client.Delete(ctx, OffsetPrefix(group), clientv3.WithPrefix()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// TopicPartitions implements Log by listing partition state keys per topic.
func (l *EtcdLog) TopicPartitions(ctx context.Context, topics []string) (map[string][]int32, error) {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	out := make(map[string][]int32, len(topics))
	for _, topic := range topics {
		prefix := partitionStatePrefix(topic)
		resp, err := l.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(resp.Kvs) == 0 {
			continue
		}
		partitions := make([]int32, 0, len(resp.Kvs))
		for _, kv := range resp.Kvs {
			raw := strings.TrimPrefix(string(kv.Key), prefix)
			id, err := strconv.ParseInt(raw, 10, 32)
			if err != nil {
				continue
			}
			partitions = append(partitions, int32(id))
		}
		out[topic] = partitions
	}
	return out, nil
}
