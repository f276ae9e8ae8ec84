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

import "github.com/prometheus/client_golang/prometheus"

const namespace = "convene"

var (
	groupsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "groups",
			Help:      "Groups currently tracked per shard, all states.",
		},
		[]string{"shard"},
	)
	rebalancesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalances_total",
			Help:      "Join barriers opened.",
		},
	)
	rebalanceSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebalance_duration_seconds",
			Help:      "Time from barrier open to group stable.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	membersExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_dropped_total",
			Help:      "Members dropped on session timeout or missed rebalance.",
		},
	)
	logAppendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_append_errors_total",
			Help:      "Failed durable writes of group records.",
		},
	)
	offsetCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_commits_total",
			Help:      "Offset commit partitions by outcome.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		groupsLive,
		rebalancesStarted,
		rebalanceSeconds,
		membersExpired,
		logAppendErrors,
		offsetCommits,
	)
}
