package errors

import (
	"fmt"
	"testing"
)

func BenchmarkErrorCreation(b *testing.B) {
	b.ReportAllocs()

	for b.Loop() {
		err := fmt.Errorf("test error")
		_ = New(err).
			Component("test").
			Category(CategoryGeneric).
			Build()
	}
}

func BenchmarkErrorCreationAutoDetect(b *testing.B) {
	b.ReportAllocs()

	for b.Loop() {
		err := fmt.Errorf("test error")
		_ = New(err).Build()
	}
}

func BenchmarkErrorCreationWithUnit(b *testing.B) {
	b.ReportAllocs()

	for b.Loop() {
		err := fmt.Errorf("test error")
		_ = New(err).
			Component("migration").
			Category(CategoryValidation).
			Unit("images", "b7f3c1d2").
			Build()
	}
}
