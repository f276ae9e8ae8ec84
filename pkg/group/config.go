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

import "time"

const (
	defaultShards                  = 8
	defaultMinSessionTimeout       = 6 * time.Second
	defaultMaxSessionTimeout       = 30 * time.Minute
	defaultRebalanceTimeout        = 30 * time.Second
	defaultInitialRebalanceDelay   = 3 * time.Second
	defaultEmptyGroupTTL           = 15 * time.Minute
	defaultSweepInterval           = 5 * time.Second
	defaultAppendTimeout           = 5 * time.Second
)

// Config tunes the coordinator. Zero values take defaults.
type Config struct {
	// Shards is the number of group tables; a group id hashes to exactly one.
	Shards int
	// MinSessionTimeout and MaxSessionTimeout bound the session timeout a
	// member may negotiate at join time.
	MinSessionTimeout time.Duration
	MaxSessionTimeout time.Duration
	// DefaultRebalanceTimeout applies when a join carries no rebalance timeout.
	DefaultRebalanceTimeout time.Duration
	// InitialRebalanceDelay holds the first join barrier of a previously empty
	// group open so the initial wave of members lands in one generation.
	InitialRebalanceDelay time.Duration
	// EmptyGroupTTL is how long an Empty group survives before it is declared
	// Dead, tombstoned, and dropped from its table.
	EmptyGroupTTL time.Duration
	// SweepInterval is the cadence of the per-table expiry sweep.
	SweepInterval time.Duration
	// AppendTimeout bounds group log appends issued outside a request context.
	AppendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = defaultShards
	}
	if c.MinSessionTimeout <= 0 {
		c.MinSessionTimeout = defaultMinSessionTimeout
	}
	if c.MaxSessionTimeout <= 0 {
		c.MaxSessionTimeout = defaultMaxSessionTimeout
	}
	if c.DefaultRebalanceTimeout <= 0 {
		c.DefaultRebalanceTimeout = defaultRebalanceTimeout
	}
	if c.InitialRebalanceDelay <= 0 {
		c.InitialRebalanceDelay = defaultInitialRebalanceDelay
	}
	if c.EmptyGroupTTL <= 0 {
		c.EmptyGroupTTL = defaultEmptyGroupTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.AppendTimeout <= 0 {
		c.AppendTimeout = defaultAppendTimeout
	}
	return c
}
