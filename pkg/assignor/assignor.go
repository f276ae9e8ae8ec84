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

// Package assignor defines the pluggable partition assignment contract used
// by the group coordinator, plus the built-in range and round-robin
// strategies. Strategies are stateless; new ones are added through the
// Registry rather than by extending the coordinator.
package assignor

import (
	"sort"
	"sync"

	"github.com/novatechflow/convene/pkg/protocol"
)

// Member is the leader's view of one group member handed to an Assignor.
type Member struct {
	ID         string
	InstanceID *string
	Topics     []string
	UserData   []byte
}

// Assignor computes a partition assignment from member subscriptions.
// The returned map must contain an entry for every input member; members
// that should receive nothing get an empty (or nil) topic list. Partition
// sets across members must not overlap.
type Assignor interface {
	Name() string
	Assign(members []Member, partitions map[string][]int32) (map[string][]protocol.AssignmentTopic, error)
}

// Registry resolves assignment strategies by protocol name.
type Registry struct {
	mu        sync.RWMutex
	assignors map[string]Assignor
}

// NewRegistry returns a registry pre-populated with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{assignors: make(map[string]Assignor)}
	r.Register(Range{})
	r.Register(RoundRobin{})
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(a Assignor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignors[a.Name()] = a
}

// Resolve looks up a strategy by name.
func (r *Registry) Resolve(name string) (Assignor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignors[name]
	return a, ok
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.assignors))
	for name := range r.assignors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// eligibleByTopic maps each subscribed topic to its members in sorted order.
// Sorting keeps assignments deterministic across reruns of the same input.
func eligibleByTopic(members []Member) map[string][]string {
	byTopic := make(map[string][]string)
	for _, member := range members {
		for _, topic := range member.Topics {
			byTopic[topic] = append(byTopic[topic], member.ID)
		}
	}
	for _, ids := range byTopic {
		sort.Strings(ids)
	}
	return byTopic
}

// finalize converts per-member topic/partition maps into the contract shape,
// guaranteeing an entry for every member and sorted, stable output.
func finalize(members []Member, raw map[string]map[string][]int32) map[string][]protocol.AssignmentTopic {
	out := make(map[string][]protocol.AssignmentTopic, len(members))
	for _, member := range members {
		topics := raw[member.ID]
		if len(topics) == 0 {
			out[member.ID] = nil
			continue
		}
		names := make([]string, 0, len(topics))
		for name := range topics {
			names = append(names, name)
		}
		sort.Strings(names)
		assigned := make([]protocol.AssignmentTopic, 0, len(names))
		for _, name := range names {
			partitions := topics[name]
			sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
			assigned = append(assigned, protocol.AssignmentTopic{Topic: name, Partitions: partitions})
		}
		out[member.ID] = assigned
	}
	return out
}
