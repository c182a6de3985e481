package db

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	if !IsDuplicateKey(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)) {
		t.Fatalf("expected translated duplicate to match")
	}
	if !IsDuplicateKey(errors.New("constraint failed: UNIQUE constraint failed: workers.email (2067)")) {
		t.Fatalf("expected sqlite message to match")
	}
	if IsDuplicateKey(errors.New("no such table")) {
		t.Fatalf("unexpected match")
	}
	if IsDuplicateKey(nil) {
		t.Fatalf("nil must not match")
	}
}
