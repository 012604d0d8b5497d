package featureflags

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	if !m.Enabled("a", 1) || !m.Enabled("c", 1) || !m.Enabled("e", 1) {
		t.Fatal("expected enabled boolean values to evaluate true")
	}
	if m.Enabled("b", 1) || m.Enabled("d", 1) || m.Enabled("f", 1) {
		t.Fatal("expected disabled boolean values to evaluate false")
	}
	if m.Enabled("missing", 1) {
		t.Fatal("unknown flags are off")
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,junk=abc%")

	if !m.Enabled("always", 1) {
		t.Fatal("100% rollout should always be enabled")
	}
	if m.Enabled("never", 1) || m.Enabled("junk", 1) {
		t.Fatal("0% and malformed rollouts should be disabled")
	}

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		if got := m.Enabled("canary", 42); got != first {
			t.Fatal("rollout evaluation must be deterministic per user")
		}
	}

	if m.Enabled("canary", 0) {
		t.Fatal("percentage rollout requires non-zero userID")
	}
}

func TestNamesAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,webp_variants=on, Tracking_Feed = 20% ,z=off ")

	names := m.Names()
	if len(names) != 3 || names[0] != TrackingFeed || names[1] != WebPVariants {
		t.Fatalf("unexpected names: %v", names)
	}

	snap := m.Snapshot(123)
	if len(snap) != 3 || !snap[WebPVariants] || snap["z"] {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}

	var nilManager *Manager
	if nilManager.Enabled(TrackingFeed, 1) || len(nilManager.Snapshot(1)) != 0 {
		t.Fatal("nil manager disables everything")
	}
}

func TestRequire(t *testing.T) {
	for raw, want := range map[string]int{
		"tracking_feed=on":  http.StatusOK,
		"tracking_feed=off": http.StatusNotFound,
		"":                  http.StatusNotFound,
	} {
		m := NewManager(raw)
		app := fiber.New()
		app.Get("/feed", func(c *fiber.Ctx) error {
			c.Locals("userID", uint(7))
			return c.Next()
		}, m.Require(TrackingFeed), func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/feed", nil))
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("flags %q: got status %d, want %d", raw, resp.StatusCode, want)
		}
	}
}
