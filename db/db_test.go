package db

import (
	"context"
	"testing"

	"github.com/onnwee/flvwatch/testutil"
)

func TestConnectRejectsEmptyDSN(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Error("Connect(\"\") error = nil, want error")
	}
}

func TestMigrate(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// statements are idempotent
	if err := Migrate(ctx, database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
