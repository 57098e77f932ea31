package functions

import (
	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// EdgeSource yields the outgoing CFG edges of a node.
type EdgeSource interface {
	Successors(id uuid.UUID) []ir.Edge
}

// FindExitBlocks returns the blocks of a function through which control
// leaves it. A block is an exit when one of its outgoing edges is
//   - a return or sysret, or
//   - a call or syscall whose target is not one of blocks.
//
// Unlabeled edges and every other edge kind never qualify a block, so a
// block with no outgoing edges is not an exit. The result keeps the order
// of blocks.
func FindExitBlocks[B BlockRef](g EdgeSource, blocks []B) []B {
	if len(blocks) == 0 {
		return nil
	}
	members := make(map[uuid.UUID]struct{}, len(blocks))
	for _, b := range blocks {
		members[b.ID()] = struct{}{}
	}

	var exits []B
	seen := make(map[uuid.UUID]struct{}, len(blocks))
	for _, b := range blocks {
		if _, dup := seen[b.ID()]; dup {
			continue
		}
		seen[b.ID()] = struct{}{}
		if leavesFunction(g.Successors(b.ID()), members) {
			exits = append(exits, b)
		}
	}
	return exits
}

// leavesFunction classifies one block's outgoing edges. A call target is
// inside the function only if it is one of the member blocks; members are
// resolved code blocks, so a target that is not a code block, or is
// unknown, is never a member.
func leavesFunction(edges []ir.Edge, members map[uuid.UUID]struct{}) bool {
	for _, e := range edges {
		if e.Label == nil {
			continue
		}
		switch e.Label.Type {
		case ir.EdgeReturn, ir.EdgeSysret:
			return true
		case ir.EdgeCall, ir.EdgeSyscall:
			if _, inside := members[e.To]; !inside {
				return true
			}
		}
	}
	return false
}
