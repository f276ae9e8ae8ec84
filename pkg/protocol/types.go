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

// Package protocol holds the decoded, coordination-layer views of the Kafka
// group APIs. Wire framing and byte-level request parsing happen upstream;
// these types are what the coordinator consumes and produces.
package protocol

// GroupProtocol is one entry of a member's protocol preference list.
type GroupProtocol struct {
	Name     string
	Metadata []byte
}

type JoinGroupRequest struct {
	GroupID            string
	SessionTimeoutMs   int32
	RebalanceTimeoutMs int32
	MemberID           string
	GroupInstanceID    *string
	ClientID           string
	ClientHost         string
	ProtocolType       string
	Protocols          []GroupProtocol
}

// JoinGroupMember is the leader's view of one joined member.
type JoinGroupMember struct {
	MemberID        string
	GroupInstanceID *string
	Metadata        []byte
}

type JoinGroupResponse struct {
	ErrorCode    int16
	GenerationID int32
	ProtocolType string
	ProtocolName string
	LeaderID     string
	MemberID     string
	Members      []JoinGroupMember
}

type SyncGroupAssignment struct {
	MemberID   string
	Assignment []byte
}

type SyncGroupRequest struct {
	GroupID         string
	GenerationID    int32
	MemberID        string
	GroupInstanceID *string
	ProtocolType    string
	ProtocolName    string
	Assignments     []SyncGroupAssignment
}

type SyncGroupResponse struct {
	ErrorCode    int16
	ProtocolType string
	ProtocolName string
	Assignment   []byte
}

type HeartbeatRequest struct {
	GroupID         string
	GenerationID    int32
	MemberID        string
	GroupInstanceID *string
}

type HeartbeatResponse struct {
	ErrorCode int16
}

// LeaveGroupMember identifies one departing member, by member id,
// group instance id, or both.
type LeaveGroupMember struct {
	MemberID        string
	GroupInstanceID *string
}

type LeaveGroupRequest struct {
	GroupID string
	Members []LeaveGroupMember
}

type LeaveGroupMemberResponse struct {
	MemberID        string
	GroupInstanceID *string
	ErrorCode       int16
}

type LeaveGroupResponse struct {
	ErrorCode int16
	Members   []LeaveGroupMemberResponse
}

type OffsetCommitPartition struct {
	Partition int32
	Offset    int64
	Metadata  string
}

type OffsetCommitTopic struct {
	Name       string
	Partitions []OffsetCommitPartition
}

type OffsetCommitRequest struct {
	GroupID         string
	GenerationID    int32
	MemberID        string
	GroupInstanceID *string
	Topics          []OffsetCommitTopic
}

type OffsetCommitPartitionResponse struct {
	Partition int32
	ErrorCode int16
}

type OffsetCommitTopicResponse struct {
	Name       string
	Partitions []OffsetCommitPartitionResponse
}

type OffsetCommitResponse struct {
	Topics []OffsetCommitTopicResponse
}

type OffsetFetchTopic struct {
	Name       string
	Partitions []int32
}

type OffsetFetchRequest struct {
	GroupID string
	Topics  []OffsetFetchTopic
}

type OffsetFetchPartitionResponse struct {
	Partition int32
	Offset    int64
	Metadata  string
	ErrorCode int16
}

type OffsetFetchTopicResponse struct {
	Name       string
	Partitions []OffsetFetchPartitionResponse
}

type OffsetFetchResponse struct {
	ErrorCode int16
	Topics    []OffsetFetchTopicResponse
}

type DescribeGroupsRequest struct {
	Groups []string
}

type DescribeGroupsMember struct {
	MemberID        string
	GroupInstanceID *string
	ClientID        string
	ClientHost      string
	Metadata        []byte
	Assignment      []byte
}

type DescribeGroupsGroup struct {
	ErrorCode    int16
	GroupID      string
	State        string
	ProtocolType string
	Protocol     string
	Members      []DescribeGroupsMember
}

type DescribeGroupsResponse struct {
	Groups []DescribeGroupsGroup
}

type ListGroupsRequest struct {
	StatesFilter []string
}

type ListGroupsGroup struct {
	GroupID      string
	ProtocolType string
	GroupState   string
}

type ListGroupsResponse struct {
	ErrorCode int16
	Groups    []ListGroupsGroup
}

type DeleteGroupsRequest struct {
	Groups []string
}

type DeleteGroupsGroup struct {
	Group     string
	ErrorCode int16
}

type DeleteGroupsResponse struct {
	Groups []DeleteGroupsGroup
}
