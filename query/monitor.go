package query

import "github.com/poiesic/searchit/core"

// QueryMonitor provides hooks to observe the query process.
// Implement this interface to track intermediate steps during fan-out,
// merge, resolution, and assembly.
type QueryMonitor interface {
	Start(granularity core.Granularity, k int)
	ShardSearched(shard int, hits int)
	ShardFailed(shard int, err error)
	AfterMerge(hits []core.Hit)
	AfterResolution(uids []core.UID)
	DegradedResult(uid core.UID, err error)
	Finish(results []Result)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.Granularity, _ int)  {}
func (n *noopMonitor) ShardSearched(_ int, _ int)       {}
func (n *noopMonitor) ShardFailed(_ int, _ error)       {}
func (n *noopMonitor) AfterMerge(_ []core.Hit)          {}
func (n *noopMonitor) AfterResolution(_ []core.UID)     {}
func (n *noopMonitor) DegradedResult(_ core.UID, _ error) {}
func (n *noopMonitor) Finish(_ []Result)                {}
