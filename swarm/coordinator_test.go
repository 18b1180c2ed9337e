package swarm

import "testing"

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return NewCoordinator(FullMesh{})
}

func TestNodeJoinFiltersHashes(t *testing.T) {
	c := newTestCoordinator(t)
	c.ResetHashes([]Hash{"A", "B"})

	n, err := c.NodeJoin("p1", []Hash{"A", "Z"}, 4, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if !n.HasHash("A") || n.HasHash("Z") {
		t.Error("NodeJoin should filter initial hashes against the universe")
	}
}

func TestNodeJoinAtMostOneMaster(t *testing.T) {
	c := newTestCoordinator(t)
	if _, err := c.NodeJoin("master", nil, 0, 4, true); err != nil {
		t.Fatal(err)
	}
	if _, err := c.NodeJoin("master2", nil, 0, 4, true); err != ErrAlreadyMaster {
		t.Fatalf("expected ErrAlreadyMaster, got %v", err)
	}
}

func TestMasterHashesEqualsUniverseAfterReset(t *testing.T) {
	c := newTestCoordinator(t)
	master, err := c.NodeJoin("master", nil, 0, 4, true)
	if err != nil {
		t.Fatal(err)
	}

	c.ResetHashes([]Hash{"A", "B", "C"})
	for _, h := range []Hash{"A", "B", "C"} {
		if !master.HasHash(h) {
			t.Errorf("master should possess %v after reset_hashes", h)
		}
	}

	// reset_hashes again with a smaller universe; master must track exactly.
	c.ResetHashes([]Hash{"A"})
	if !master.HasHash("A") || master.HasHash("B") || master.HasHash("C") {
		t.Error("master hashes should equal the new universe exactly")
	}
}

func TestResetHashesDropsStaleFromPeers(t *testing.T) {
	c := newTestCoordinator(t)
	c.ResetHashes([]Hash{"A", "B"})
	p1, err := c.NodeJoin("p1", []Hash{"A", "B"}, 4, 4, false)
	if err != nil {
		t.Fatal(err)
	}

	c.ResetHashes([]Hash{"A"})
	if !p1.HasHash("A") || p1.HasHash("B") {
		t.Error("peer hashes should be intersected with the new universe")
	}
}

func TestDestroyRemovesFromPlannerConsideration(t *testing.T) {
	c := newTestCoordinator(t)
	c.ResetHashes([]Hash{"A"})
	if _, err := c.NodeJoin("seed", nil, 0, 4, true); err != nil {
		t.Fatal(err)
	}
	p1, err := c.NodeJoin("p1", nil, 4, 4, false)
	if err != nil {
		t.Fatal(err)
	}

	c.RemoveNode(p1.ID)
	if c.IsAlive(p1.ID) {
		t.Fatal("expected p1 to be dead after RemoveNode")
	}
	transfers := c.PlanTransfers()
	if len(transfers) != 0 {
		t.Errorf("expected no transfers once the only receiver is dead, got %v", transfers)
	}
}

func TestGetStatusTablePossessionStates(t *testing.T) {
	c := newTestCoordinator(t)
	c.ResetHashes([]Hash{"A", "B"})
	if _, err := c.NodeJoin("seed", nil, 0, 4, true); err != nil {
		t.Fatal(err)
	}
	p1, err := c.NodeJoin("p1", []Hash{"A"}, 4, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := p1.SetActiveTransfers([]ActiveDownload{{Hash: "B", From: "seed"}}, 0, c.IsAlive); err != nil {
		t.Fatal(err)
	}

	table := c.GetStatusTable()
	var p1Row *StatusNode
	for i := range table.Nodes {
		if table.Nodes[i].Name == "p1" {
			p1Row = &table.Nodes[i]
		}
	}
	if p1Row == nil {
		t.Fatal("expected a status row for p1")
	}
	for i, h := range table.AllHashes {
		switch h {
		case "A":
			if p1Row.Possession[i] != 1 {
				t.Errorf("expected possession=1 (have) for A, got %v", p1Row.Possession[i])
			}
		case "B":
			if p1Row.Possession[i] != 0.5 {
				t.Errorf("expected possession=0.5 (downloading) for B, got %v", p1Row.Possession[i])
			}
		}
	}
}
