package fanout

import (
	"reflect"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// dashboardNodesNotification is dashboard_updated's "nodes" shape.
type dashboardNodesNotification struct {
	Nodes []map[string]any `json:"nodes"`
}

type dashboardConnectionsNotification struct {
	ConnectionsAdded   []connectionWire `json:"connectionsAdded"`
	ConnectionsRemoved []connectionWire `json:"connectionsRemoved"`
}

type connectionWire struct {
	NodeA string `json:"nodeA"`
	NodeB string `json:"nodeB"`
}

// Propagator implements fleetdb.Subscriber, turning every DB mutation into
// a sparse dashboard notification by diffing before/after field by field:
// one explicit comparison per dashboard-visible field, reflect.DeepEqual
// only where a field is a slice, struct or pointer (peers, bestBlockId,
// pendingParcels, whitelist/blacklist, hardware) that Go's == can't compare
// by value.
type Propagator struct {
	hub *Hub
}

func NewPropagator(hub *Hub) *Propagator {
	return &Propagator{hub: hub}
}

func (p *Propagator) OnEvent(ev fleetdb.Event) {
	switch e := ev.(type) {
	case fleetdb.ClientUpdated:
		p.onClientUpdated(e)
	case fleetdb.ConnectionChanged:
		p.onConnectionChanged(e)
	case fleetdb.ClientExtraUpdated:
		p.onClientExtraUpdated(e)
	}
}

func (p *Propagator) onClientUpdated(e fleetdb.ClientUpdated) {
	after := e.After
	diff := map[string]any{"name": after.Name}

	if e.Before == nil {
		diff["address"] = after.Address
		diff["status"] = after.Status
		diff["peers"] = after.Peers
		diff["bestBlockId"] = after.Best
		diff["version"] = after.Version
		diff["pendingParcels"] = after.PendingParcels
		diff["whitelist"] = after.Whitelist
		diff["blacklist"] = after.Blacklist
		diff["hardware"] = after.Hardware
	} else {
		before := *e.Before
		if before.Address != after.Address {
			diff["address"] = after.Address
		}
		if before.Status != after.Status {
			diff["status"] = after.Status
		}
		if !reflect.DeepEqual(before.Peers, after.Peers) {
			diff["peers"] = after.Peers
		}
		if !reflect.DeepEqual(before.Best, after.Best) {
			diff["bestBlockId"] = after.Best
		}
		if before.Version != after.Version {
			diff["version"] = after.Version
		}
		if !reflect.DeepEqual(before.PendingParcels, after.PendingParcels) {
			diff["pendingParcels"] = after.PendingParcels
		}
		if !reflect.DeepEqual(before.Whitelist, after.Whitelist) {
			diff["whitelist"] = after.Whitelist
		}
		if !reflect.DeepEqual(before.Blacklist, after.Blacklist) {
			diff["blacklist"] = after.Blacklist
		}
		if !reflect.DeepEqual(before.Hardware, after.Hardware) {
			diff["hardware"] = after.Hardware
		}
		if len(diff) == 1 {
			// Only "name" present — UpdatedAt changed but nothing the
			// dashboard cares about did.
			return
		}
	}

	p.hub.SendEvent("dashboard_updated", dashboardNodesNotification{Nodes: []map[string]any{diff}})
	p.hub.SendEvent("node_updated", diff)
}

func (p *Propagator) onConnectionChanged(e fleetdb.ConnectionChanged) {
	added := make([]connectionWire, len(e.Added))
	for i, c := range e.Added {
		added[i] = connectionWire{NodeA: c.NodeA, NodeB: c.NodeB}
	}
	removed := make([]connectionWire, len(e.Removed))
	for i, c := range e.Removed {
		removed[i] = connectionWire{NodeA: c.NodeA, NodeB: c.NodeB}
	}
	p.hub.SendEvent("dashboard_updated", dashboardConnectionsNotification{
		ConnectionsAdded:   added,
		ConnectionsRemoved: removed,
	})
}

func (p *Propagator) onClientExtraUpdated(e fleetdb.ClientExtraUpdated) {
	diff := map[string]any{"name": e.Name}

	if e.Before == nil {
		diff["startOption"] = map[string]string{"env": e.After.PrevEnv, "args": e.After.PrevArgs}
	} else {
		before := *e.Before
		if before == e.After {
			return
		}
		if before.PrevEnv != e.After.PrevEnv || before.PrevArgs != e.After.PrevArgs {
			diff["startOption"] = map[string]string{"env": e.After.PrevEnv, "args": e.After.PrevArgs}
		}
	}

	p.hub.SendEvent("node_updated", diff)
}
