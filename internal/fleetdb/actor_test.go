package fleetdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	a, err := Open(Config{Driver: "sqlite", DSN: ":memory:", Logger: zap.NewNop(), LogLevel: gormlogger.Silent}, zap.NewNop())
	require.NoError(t, err)
	go a.Run()
	t.Cleanup(a.Stop)
	return a
}

func mustInit(t *testing.T, a *Actor, ctx context.Context, snap ClientQueryResult) bool {
	t.Helper()
	admitted, err := a.InitializeClient(ctx, snap)
	require.NoError(t, err, "InitializeClient(%s)", snap.Name)
	return admitted
}

// TestDuplicateNameArbitration: a second session
// claiming an already-live name is refused; a session claiming a name whose
// prior holder is recorded as StatusError is admitted and overwrites it.
func TestDuplicateNameArbitration(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	require.True(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-a", Address: "10.0.0.1:30303", Status: StatusRun}),
		"first InitializeClient for an unknown name should be admitted")

	require.False(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-a", Address: "10.0.0.9:30303", Status: StatusRun}),
		"InitializeClient for an already-live name should be refused")

	// Simulate the first session's cleanup path marking it errored.
	err := a.UpdateClient(ctx, ClientQueryResult{Name: "node-a", Address: "10.0.0.1:30303", Status: StatusError})
	require.NoError(t, err)

	require.True(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-a", Address: "10.0.0.9:30303", Status: StatusRun}),
		"InitializeClient for a name last recorded as StatusError should be admitted")

	got, found, err := a.GetClient(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, found, "node-a should be present after re-admission")
	require.Equal(t, "10.0.0.9:30303", got.Address, "expected the overwritten address to win")
}

// TestConnectionSymmetry: when node A reports node B
// as a peer (by resolving B's address), GetConnections reports the edge
// exactly once regardless of which side initiated it, and it disappears
// once A stops reporting it even though B never updates.
func TestConnectionSymmetry(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	require.True(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-a", Address: "10.0.0.1:30303", Status: StatusRun}))
	require.True(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-b", Address: "10.0.0.2:30303", Status: StatusRun}))

	// Only node-a reports node-b's address as a peer; node-b never updates.
	err := a.UpdateClient(ctx, ClientQueryResult{
		Name: "node-a", Address: "10.0.0.1:30303", Status: StatusRun,
		Peers: []string{"10.0.0.2:30303"},
	})
	require.NoError(t, err)

	conns, err := a.GetConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	c := conns[0]
	isPair := (c.NodeA == "node-a" && c.NodeB == "node-b") || (c.NodeA == "node-b" && c.NodeB == "node-a")
	require.True(t, isPair, "unexpected connection pair: %+v", c)

	// node-a stops reporting the peer: the edge must disappear even though
	// node-b (the other side) never updated either.
	err = a.UpdateClient(ctx, ClientQueryResult{
		Name: "node-a", Address: "10.0.0.1:30303", Status: StatusRun,
		Peers: nil,
	})
	require.NoError(t, err)

	conns, err = a.GetConnections(ctx)
	require.NoError(t, err)
	require.Empty(t, conns, "expected no connections after the peer was dropped")
}

// TestConnectionSymmetryUnrelatedTick confirms node-b's own routine tick,
// reporting the same one-directional peer list it always has, never wipes
// node-a's independently-claimed edge to node-b.
func TestConnectionSymmetryUnrelatedTick(t *testing.T) {
	a := newTestActor(t)
	ctx := context.Background()

	require.True(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-a", Address: "10.0.0.1:30303", Status: StatusRun}))
	require.True(t, mustInit(t, a, ctx, ClientQueryResult{Name: "node-b", Address: "10.0.0.2:30303", Status: StatusRun}))

	// node-a reports node-b as a peer. node-b never reports node-a.
	err := a.UpdateClient(ctx, ClientQueryResult{
		Name: "node-a", Address: "10.0.0.1:30303", Status: StatusRun,
		Peers: []string{"10.0.0.2:30303"},
	})
	require.NoError(t, err)

	conns, err := a.GetConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1, "expected the one-directional claim to still be live")

	// node-b's ordinary monitor tick: its own peer list is unchanged (still
	// empty), so this must not affect node-a's unrelated, still-current claim.
	err = a.UpdateClient(ctx, ClientQueryResult{
		Name: "node-b", Address: "10.0.0.2:30303", Status: StatusRun,
		Peers: nil,
	})
	require.NoError(t, err)

	conns, err = a.GetConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1, "node-b's own unrelated tick must not delete node-a's claim")
}

// TestUpdateClientRequiresPriorInitialize confirms UpdateClient refuses a
// name that was never admitted via InitializeClient, guarding against a
// session skipping startup and writing directly into the snapshot.
func TestUpdateClientRequiresPriorInitialize(t *testing.T) {
	a := newTestActor(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := a.UpdateClient(ctx, ClientQueryResult{Name: "ghost", Status: StatusRun})
	require.Error(t, err, "expected UpdateClient for an uninitialized name to fail")
}
