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

package assignor

import (
	"sort"

	"github.com/novatechflow/convene/pkg/protocol"
)

// RoundRobin spreads each topic's partitions one by one across its
// subscribers in sorted member order.
type RoundRobin struct{}

func (RoundRobin) Name() string { return "roundrobin" }

func (RoundRobin) Assign(members []Member, partitions map[string][]int32) (map[string][]protocol.AssignmentTopic, error) {
	byTopic := eligibleByTopic(members)
	raw := make(map[string]map[string][]int32, len(members))
	for _, member := range members {
		raw[member.ID] = make(map[string][]int32)
	}
	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		ids := byTopic[topic]
		parts := append([]int32(nil), partitions[topic]...)
		if len(parts) == 0 {
			continue
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
		for i, partition := range parts {
			id := ids[i%len(ids)]
			raw[id][topic] = append(raw[id][topic], partition)
		}
	}
	return finalize(members, raw), nil
}
