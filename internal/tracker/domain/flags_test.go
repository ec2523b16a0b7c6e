package domain

import (
	"reflect"
	"testing"
)

func TestFlagsCloneIsIndependent(t *testing.T) {
	original := Flags{FlagCapped: true, FlagXPMultiplier: false}
	clone := original.Clone()

	if !clone.Has(FlagCapped) {
		t.Fatal("expected capped carried into clone")
	}
	if clone.Has(FlagXPMultiplier) {
		t.Fatal("unset flags must not survive cloning")
	}

	clone[FlagCurrencyMultiplier] = true
	if original.Has(FlagCurrencyMultiplier) {
		t.Fatal("mutating the clone leaked into the original")
	}
}

func TestFlagsNamesSorted(t *testing.T) {
	flags := Flags{FlagXPMultiplier: true, FlagCapped: true, "custom_modifier": true}

	names := flags.Names()
	want := []string{FlagCapped, "custom_modifier", FlagXPMultiplier}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestFlagsNilSafe(t *testing.T) {
	var flags Flags
	if flags.Has(FlagCapped) {
		t.Fatal("nil flags must report unset")
	}
	if flags.Names() != nil {
		t.Fatal("nil flags must report no names")
	}
	if flags.Clone() != nil {
		t.Fatal("nil flags clone to nil")
	}
}
