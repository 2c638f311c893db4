package app

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"

	"teaminova/internal/authz"
	"teaminova/internal/config"
	"teaminova/internal/engine"
	"teaminova/internal/identity"
)

func TestOpenWiresLocalIdentityWithoutCredentials(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rt, err := Open(context.Background(), Options{Workspace: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Engine.Identity.(*identity.Local); !ok {
		t.Fatalf("expected local identity, got %T", rt.Engine.Identity)
	}
	if rt.Verifier != nil {
		t.Fatalf("expected no token verifier")
	}
}

func TestOpenUsesRedisDirectoryFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	cfg := strings.Replace(config.GenerateDefault(), `redis_addr: ""`, "redis_addr: "+mr.Addr(), 1)
	if err := os.WriteFile(config.Path(dir), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	logger, hook := test.NewNullLogger()
	rt, err := Open(context.Background(), Options{Workspace: dir, Logger: logger})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.Engine.Directory == nil {
		t.Fatalf("expected directory cache")
	}
	ctx := context.Background()
	m, err := rt.Engine.RegisterMember(ctx, authz.Viewer{}, engine.RegisterOptions{Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	viewer := authz.Viewer{ProfileID: m.ID, Email: m.Email}
	if _, err := rt.Engine.ListMembers(ctx, viewer); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !mr.Exists("teaminova:members") {
		t.Fatalf("expected directory to be cached")
	}
	if hook.LastEntry() == nil {
		t.Fatalf("expected notices to be logged")
	}
}
