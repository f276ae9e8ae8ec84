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

package group

// Operation names the ACL operation a request maps to.
type Operation string

const (
	OpRead     Operation = "read"
	OpDescribe Operation = "describe"
	OpDelete   Operation = "delete"
)

// Authorizer is the access-control collaborator. The coordinator consults it
// before touching any group state; policy lives elsewhere.
type Authorizer interface {
	Authorized(op Operation, groupID string) bool
}

// AllowAll authorizes every operation. Default when no authorizer is wired.
type AllowAll struct{}

func (AllowAll) Authorized(Operation, string) bool { return true }
