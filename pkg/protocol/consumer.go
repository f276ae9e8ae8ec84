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
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedBlob indicates a consumer protocol blob that cannot be decoded.
var ErrMalformedBlob = errors.New("malformed consumer protocol blob")

// Subscription is the decoded form of the consumer protocol metadata blob a
// member attaches to each protocol entry at join time. The coordinator itself
// treats the blob as opaque; only assignors and DescribeGroups interpret it.
type Subscription struct {
	Version  int16
	Topics   []string
	UserData []byte
}

// AssignmentTopic is one topic's partition set within a member assignment.
type AssignmentTopic struct {
	Topic      string
	Partitions []int32
}

// Assignment is the decoded form of the assignment blob handed back to a
// member after a successful SyncGroup.
type Assignment struct {
	Version  int16
	Topics   []AssignmentTopic
	UserData []byte
}

// EncodeSubscription renders the consumer protocol subscription blob.
func EncodeSubscription(sub *Subscription) []byte {
	w := newBlobWriter(16 + len(sub.Topics)*16)
	w.int16(sub.Version)
	w.int32(int32(len(sub.Topics)))
	for _, topic := range sub.Topics {
		w.string(topic)
	}
	w.bytes(sub.UserData)
	return w.buf
}

// DecodeSubscription parses a consumer protocol subscription blob.
func DecodeSubscription(data []byte) (*Subscription, error) {
	r := blobReader{data: data}
	sub := &Subscription{Version: r.int16()}
	count := r.int32()
	if count < 0 || int(count) > len(data) {
		return nil, fmt.Errorf("%w: topic count %d", ErrMalformedBlob, count)
	}
	sub.Topics = make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		sub.Topics = append(sub.Topics, r.string())
	}
	sub.UserData = r.bytes()
	if r.err != nil {
		return nil, r.err
	}
	return sub, nil
}

// EncodeAssignment renders the consumer protocol assignment blob.
func EncodeAssignment(assignment *Assignment) []byte {
	w := newBlobWriter(16)
	w.int16(assignment.Version)
	w.int32(int32(len(assignment.Topics)))
	for _, topic := range assignment.Topics {
		w.string(topic.Topic)
		w.int32(int32(len(topic.Partitions)))
		for _, partition := range topic.Partitions {
			w.int32(partition)
		}
	}
	w.bytes(assignment.UserData)
	return w.buf
}

// DecodeAssignment parses a consumer protocol assignment blob.
func DecodeAssignment(data []byte) (*Assignment, error) {
	r := blobReader{data: data}
	assignment := &Assignment{Version: r.int16()}
	count := r.int32()
	if count < 0 || int(count) > len(data) {
		return nil, fmt.Errorf("%w: topic count %d", ErrMalformedBlob, count)
	}
	assignment.Topics = make([]AssignmentTopic, 0, count)
	for i := int32(0); i < count; i++ {
		topic := AssignmentTopic{Topic: r.string()}
		partitions := r.int32()
		if partitions < 0 || int(partitions)*4 > len(data) {
			return nil, fmt.Errorf("%w: partition count %d", ErrMalformedBlob, partitions)
		}
		topic.Partitions = make([]int32, 0, partitions)
		for j := int32(0); j < partitions; j++ {
			topic.Partitions = append(topic.Partitions, r.int32())
		}
		assignment.Topics = append(assignment.Topics, topic)
	}
	assignment.UserData = r.bytes()
	if r.err != nil {
		return nil, r.err
	}
	return assignment, nil
}

type blobWriter struct {
	buf []byte
}

func newBlobWriter(capacity int) *blobWriter {
	return &blobWriter{buf: make([]byte, 0, capacity)}
}

func (w *blobWriter) int16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *blobWriter) int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *blobWriter) string(s string) {
	w.int16(int16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *blobWriter) bytes(b []byte) {
	if b == nil {
		w.int32(-1)
		return
	}
	w.int32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

type blobReader struct {
	data []byte
	pos  int
	err  error
}

func (r *blobReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *blobReader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated at offset %d", ErrMalformedBlob, r.pos)
	}
}

func (r *blobReader) int16() int16 {
	if r.err != nil || r.remaining() < 2 {
		r.fail()
		return 0
	}
	v := int16(binary.BigEndian.Uint16(r.data[r.pos:]))
	r.pos += 2
	return v
}

func (r *blobReader) int32() int32 {
	if r.err != nil || r.remaining() < 4 {
		r.fail()
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v
}

func (r *blobReader) string() string {
	length := r.int16()
	if r.err != nil || length < 0 || r.remaining() < int(length) {
		r.fail()
		return ""
	}
	s := string(r.data[r.pos : r.pos+int(length)])
	r.pos += int(length)
	return s
}

func (r *blobReader) bytes() []byte {
	length := r.int32()
	if r.err != nil {
		return nil
	}
	if length < 0 {
		return nil
	}
	if r.remaining() < int(length) {
		r.fail()
		return nil
	}
	b := make([]byte, length)
	copy(b, r.data[r.pos:r.pos+int(length)])
	r.pos += int(length)
	return b
}
