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

// Range assigns contiguous partition blocks per topic. Members earlier in
// sorted id order receive one extra partition when the count does not divide
// evenly, matching the Kafka range assignor.
type Range struct{}

func (Range) Name() string { return "range" }

func (Range) Assign(members []Member, partitions map[string][]int32) (map[string][]protocol.AssignmentTopic, error) {
	byTopic := eligibleByTopic(members)
	raw := make(map[string]map[string][]int32, len(members))
	for _, member := range members {
		raw[member.ID] = make(map[string][]int32)
	}
	for topic, ids := range byTopic {
		parts := append([]int32(nil), partitions[topic]...)
		if len(parts) == 0 {
			continue
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
		per := len(parts) / len(ids)
		extra := len(parts) % len(ids)
		cursor := 0
		for i, id := range ids {
			count := per
			if i < extra {
				count++
			}
			if count == 0 {
				continue
			}
			raw[id][topic] = append(raw[id][topic], parts[cursor:cursor+count]...)
			cursor += count
		}
	}
	return finalize(members, raw), nil
}
