package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.NotZero(t, ee.Timestamp)
}

func TestBuildInfersCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"refused", fmt.Errorf("dial tcp 127.0.0.1:3306: connect: connection refused"), CategoryConnectivity},
		{"duplicate", fmt.Errorf("Error 1062: Duplicate entry 'x' for key 'PRIMARY'"), CategoryConstraint},
		{"invalid", fmt.Errorf("invalid descriptor"), CategoryValidation},
		{"wrapped enhanced", fmt.Errorf("outer: %w", ReferenceError("owner missing")), CategoryReference},
		{"plain", fmt.Errorf("boom"), CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(tt.err).Build().Category)
		})
	}
}

func TestTaxonomyHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCategory(ValidationError("bad"), CategoryValidation))
	assert.True(t, IsCategory(ReferenceError("missing"), CategoryReference))
	assert.True(t, IsCategory(ConnectivityError(fmt.Errorf("down"), "leporid"), CategoryConnectivity))
	assert.True(t, IsCategory(ConstraintError(fmt.Errorf("dup"), "tbl_image"), CategoryConstraint))
	assert.False(t, IsCategory(fmt.Errorf("plain"), CategoryValidation))

	wrapped := fmt.Errorf("unit failed: %w", ReferenceError("owner missing"))
	assert.Equal(t, CategoryReference, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(fmt.Errorf("plain")))
}

func TestIsMatchesCategoryAndWrapped(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	ee := New(fmt.Errorf("ctx: %w", sentinel)).Category(CategoryDatabase).Build()

	assert.True(t, Is(ee, sentinel))
	assert.True(t, Is(ee, &EnhancedError{Category: CategoryDatabase}))
	assert.False(t, Is(ee, &EnhancedError{Category: CategoryValidation}))
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("x")).Unit("users", "alice").Context("attempt", 1).Build()

	ctx := ee.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "users", ctx["unit_kind"])
	assert.Equal(t, "alice", ctx["unit_id"])

	ctx["unit_id"] = "mallory"
	assert.Equal(t, "alice", ee.GetContext()["unit_id"])
}

func TestPriorityFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PriorityHigh, New(fmt.Errorf("x")).Priority(PriorityHigh).Build().GetPriority())
	assert.Equal(t, PriorityMedium, New(fmt.Errorf("x")).Priority("urgent").Build().GetPriority())
	assert.Empty(t, New(fmt.Errorf("x")).Build().GetPriority())
}

func TestComponent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "database", New(fmt.Errorf("x")).Component("database").Build().GetComponent())
	// Test frames live in the errors package itself, so detection finds nothing.
	assert.Equal(t, ComponentUnknown, New(fmt.Errorf("x")).Build().GetComponent())
}

func TestFileError(t *testing.T) {
	t.Parallel()

	ee := FileError(fmt.Errorf("missing"), "/data/images/abc.webp", 2048)
	assert.Equal(t, CategoryFileIO, ee.Category)
	assert.Equal(t, "webp", ee.GetContext()["file_extension"])
	assert.Equal(t, int64(2048), ee.GetContext()["file_size"])
}
