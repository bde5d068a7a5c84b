// Package router implements the intra-cluster, PathFinder-style
// negotiated-congestion maze router (spec §4.5): given a per-block-type
// RR graph (package rrgraph) and a set of atom nets with terminals fixed
// to RR node indices, it proves whether the current atom assignment can
// be legally interconnected inside one cluster.
//
// State is owned per-cluster and is entirely index-based (no pointers
// into the cluster's PB tree): terminals are rrgraph node indices, a
// mode-tagged RR edge is matched by its Owner PbGraphNode and ModeIndex,
// and the caller (package cluster, orchestrated by the legalizer) is
// responsible for telling the router which mode is active at each owner,
// via SetActiveMode and ClearActiveMode.
package router
