package master

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lanscatter/masterd/swarm"
)

func TestStatusPageEmptyUniverse(t *testing.T) {
	c := swarm.NewCoordinator(swarm.FullMesh{})
	p := newStatusPage(c)

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	body := w.Body.String()
	if !strings.Contains(body, "still hashing") {
		t.Errorf("expected the empty-universe message, got: %s", body)
	}
	if !strings.Contains(body, `content="4"`) {
		t.Error("expected a 4s auto-refresh meta tag")
	}
}

func TestStatusPageRendersNodesAndCaches(t *testing.T) {
	c := swarm.NewCoordinator(swarm.FullMesh{})
	c.ResetHashes([]swarm.Hash{"A"})
	node, err := c.NodeJoin("peer1", []swarm.Hash{"A"}, 1, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	p := newStatusPage(c)

	w1 := httptest.NewRecorder()
	p.ServeHTTP(w1, httptest.NewRequest("GET", "/", nil))
	if !strings.Contains(w1.Body.String(), "peer1") {
		t.Errorf("expected rendered page to mention peer1, got: %s", w1.Body.String())
	}

	// Destroy the node; because the render is cached, a second request
	// within the TTL must still show the old snapshot.
	node.Destroy()
	w2 := httptest.NewRecorder()
	p.ServeHTTP(w2, httptest.NewRequest("GET", "/", nil))
	if w2.Body.String() != w1.Body.String() {
		t.Error("expected cached render to be reused within the TTL")
	}

	p.cachedAt = time.Now().Add(-2 * statusCacheTTL)
	w3 := httptest.NewRecorder()
	p.ServeHTTP(w3, httptest.NewRequest("GET", "/", nil))
	if strings.Contains(w3.Body.String(), "peer1") {
		t.Error("expected a fresh render after the cache expired to drop the destroyed node")
	}
}
