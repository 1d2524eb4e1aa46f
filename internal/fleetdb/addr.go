package fleetdb

// socketAddrToName finds the (first) known session whose recorded address
// equals addr, or "" if none resolves. Must only be called from inside the
// actor goroutine.
func (a *Actor) socketAddrToName(addr string) (string, bool) {
	if addr == "" {
		return "", false
	}
	for name, c := range a.snapshot {
		if c.Address == addr {
			return name, true
		}
	}
	return "", false
}

// diffConnections resolves after's peer address list into node names and
// diffs the result against after.Name's own previously-claimed peer set.
//
// a.claimed[name] holds only the peers that name itself has ever reported
// in its own UpdateClient calls — it is never mirrored in from the other
// side of an edge. The live, undirected edge set (used by GetConnections)
// is the union of both sides' directed claims: edge(A,B) is live iff
// B ∈ claimed[A] OR A ∈ claimed[B]. Keeping the two directions
// in separate per-name maps, instead of writing one side's claim into the
// other's entry, means one node's own unrelated tick — which only ever
// replaces a.claimed[after.Name] — can never delete the other node's
// still-current, independently-claimed edge.
func (a *Actor) diffConnections(after ClientQueryResult) (added, removed []Connection) {
	resolved := make(map[string]struct{})
	for _, peerAddr := range after.Peers {
		if peerName, ok := a.socketAddrToName(peerAddr); ok && peerName != after.Name {
			resolved[peerName] = struct{}{}
		}
	}

	oldSelf := a.claimed[after.Name]

	// Only peers appearing in the old or new self-claimed set can possibly
	// change liveness as a result of this update — an edge the other side
	// already claims independently is untouched by what after.Name reports
	// either way.
	candidates := make(map[string]struct{}, len(oldSelf)+len(resolved))
	for p := range oldSelf {
		candidates[p] = struct{}{}
	}
	for p := range resolved {
		candidates[p] = struct{}{}
	}

	for peerName := range candidates {
		otherClaims := hasPeer(a.claimed[peerName], after.Name)
		wasLive := hasPeer(oldSelf, peerName) || otherClaims
		isLive := hasPeer(resolved, peerName) || otherClaims
		switch {
		case isLive && !wasLive:
			added = append(added, Connection{NodeA: after.Name, NodeB: peerName})
		case wasLive && !isLive:
			removed = append(removed, Connection{NodeA: after.Name, NodeB: peerName})
		}
	}

	a.setClaimed(after.Name, resolved)

	return added, removed
}

func hasPeer(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

// setClaimed replaces after.Name's own directed claim set, never touching
// any other name's entry.
func (a *Actor) setClaimed(name string, peers map[string]struct{}) {
	cp := make(map[string]struct{}, len(peers))
	for p := range peers {
		cp[p] = struct{}{}
	}
	a.claimed[name] = cp
}
