package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmynk/groupcart/internal/auth"
	"github.com/mmynk/groupcart/internal/models"
	"github.com/mmynk/groupcart/internal/storage/sqlite"
)

// execute runs groupcartctl against a fresh database in a temp dir.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ctl.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("REDIS_ADDR", "")
	return dbPath
}

func seedGroup(t *testing.T, dbPath string) string {
	t.Helper()
	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	g := &models.Group{
		Name:          "Hostel B lunch",
		OwnerMemberID: "m-owner",
		Status:        models.GroupStatusForming,
		Members: []models.Member{
			{ID: "m-owner", UserID: "alice", Role: models.MemberRoleOwner, JoinedAt: 100},
		},
		Items: []models.CartItem{
			{ID: "i-1", OwnerMemberID: "m-owner", CatalogRef: "dosa", Quantity: 2, PriceAtTime: 150, AddedAt: 300},
		},
		Total: 300,
	}
	if err := store.CreateGroup(context.Background(), g); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return g.ID
}

func TestGroupGet(t *testing.T) {
	dbPath := setupDB(t)
	id := seedGroup(t, dbPath)

	out, err := execute(t, "group", "get", id)
	if err != nil {
		t.Fatalf("group get failed: %v", err)
	}
	if !strings.Contains(out, "status=forming") || !strings.Contains(out, "item i-1 dosa x2 @150") {
		t.Errorf("Unexpected output:\n%s", out)
	}

	out, err = execute(t, "--json", "group", "get", id)
	if err != nil {
		t.Fatalf("group get --json failed: %v", err)
	}
	var g models.Group
	if err := json.Unmarshal([]byte(out), &g); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out)
	}
	if g.ID != id || g.Total != 300 {
		t.Errorf("Got group %s total %d", g.ID, g.Total)
	}

	if _, err := execute(t, "group", "get", "missing"); err == nil {
		t.Error("Expected error for unknown group")
	}
}

func TestLockGetFreeSlot(t *testing.T) {
	setupDB(t)

	out, err := execute(t, "lock", "get", "slot-9")
	if err != nil {
		t.Fatalf("lock get failed: %v", err)
	}
	if strings.TrimSpace(out) != "slot slot-9 is free" {
		t.Errorf("Output = %q", out)
	}
}

func TestSweepAndReapEmpty(t *testing.T) {
	setupDB(t)

	out, err := execute(t, "sweep")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !strings.Contains(out, "reconciled 0, reverted 0, expired 0, failed 0") {
		t.Errorf("sweep output = %q", out)
	}

	out, err = execute(t, "reap")
	if err != nil {
		t.Fatalf("reap failed: %v", err)
	}
	if !strings.Contains(out, "reaped 0 locks, 0 idempotency keys") {
		t.Errorf("reap output = %q", out)
	}
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "ctl-secret")

	out, err := execute(t, "token", "alice", "--phone", "9000000001")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}

	claims, err := auth.NewJWTManager("ctl-secret", 0).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "alice" || claims.Phone != "9000000001" {
		t.Errorf("Claims = %+v", claims)
	}
}
