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

// Kafka protocol error codes surfaced by the group coordination APIs.
const (
	NONE                         int16 = 0
	UNKNOWN_SERVER_ERROR         int16 = -1
	COORDINATOR_LOAD_IN_PROGRESS int16 = 14
	NOT_COORDINATOR              int16 = 16
	ILLEGAL_GENERATION           int16 = 22
	INCONSISTENT_GROUP_PROTOCOL  int16 = 23
	INVALID_GROUP_ID             int16 = 24
	UNKNOWN_MEMBER_ID            int16 = 25
	INVALID_SESSION_TIMEOUT      int16 = 26
	REBALANCE_IN_PROGRESS        int16 = 27
	GROUP_AUTHORIZATION_FAILED   int16 = 30
	INVALID_REQUEST              int16 = 42
	NON_EMPTY_GROUP              int16 = 68
	GROUP_ID_NOT_FOUND           int16 = 69
	FENCED_INSTANCE_ID           int16 = 82
)
