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

package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"
)

func TestDecodeSubscriptionFromKafkaClient(t *testing.T) {
	meta := kmsg.NewConsumerMemberMetadata()
	meta.Version = 0
	meta.Topics = []string{"orders", "payments"}
	meta.UserData = []byte("ud")
	blob := meta.AppendTo(nil)

	sub, err := DecodeSubscription(blob)
	if err != nil {
		t.Fatalf("DecodeSubscription: %v", err)
	}
	if len(sub.Topics) != 2 || sub.Topics[0] != "orders" || sub.Topics[1] != "payments" {
		t.Fatalf("unexpected topics: %v", sub.Topics)
	}
	if string(sub.UserData) != "ud" {
		t.Fatalf("unexpected user data: %q", sub.UserData)
	}
}

func TestAssignmentRoundTripMatchesKafkaClient(t *testing.T) {
	assignment := &Assignment{
		Version: 0,
		Topics: []AssignmentTopic{
			{Topic: "orders", Partitions: []int32{0, 1, 2}},
			{Topic: "payments", Partitions: []int32{3}},
		},
	}
	blob := EncodeAssignment(assignment)

	var ref kmsg.ConsumerMemberAssignment
	if err := ref.ReadFrom(blob); err != nil {
		t.Fatalf("kafka client rejected assignment blob: %v", err)
	}
	if len(ref.Topics) != 2 || ref.Topics[0].Topic != "orders" {
		t.Fatalf("unexpected reference decode: %+v", ref.Topics)
	}

	decoded, err := DecodeAssignment(blob)
	if err != nil {
		t.Fatalf("DecodeAssignment: %v", err)
	}
	if len(decoded.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(decoded.Topics))
	}
	if !bytes.Equal(EncodeAssignment(decoded), blob) {
		t.Fatal("re-encoded assignment differs from original blob")
	}
}

func TestDecodeSubscriptionMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":           nil,
		"truncated count": {0, 0, 0, 0},
		"bogus count":     {0, 0, 0xff, 0xff, 0xff, 0xff},
		"truncated topic": {0, 0, 0, 0, 0, 1, 0, 10, 'a'},
	}
	for name, blob := range cases {
		if _, err := DecodeSubscription(blob); !errors.Is(err, ErrMalformedBlob) {
			t.Errorf("%s: expected ErrMalformedBlob, got %v", name, err)
		}
	}
}
