package engine

import "testing"

func TestDerive(t *testing.T) {
	c := Config{SegmentDuration: 2, SlotDuration: 10, OverlapDuration: 4, GracePercent: 0, RequiredSubtitlers: 3}
	d := c.Derive()
	if d.Stride != 6 {
		t.Fatalf("stride = %d, want 6", d.Stride)
	}
	if d.Grace != 0 {
		t.Fatalf("grace = %d, want 0", d.Grace)
	}
	if d.SubmitDeadline != 10 {
		t.Fatalf("submitDeadline = %d, want 10", d.SubmitDeadline)
	}
	if d.MinRequired != 2 {
		t.Fatalf("minRequired = %d, want 2", d.MinRequired)
	}
	if d.MinDelay != 10 {
		t.Fatalf("minDelay = %d, want 10", d.MinDelay)
	}
}

// Scenario D: D=10, O=5, g=40 -> G=4, S=5, minRequired=ceil(14/5)=3.
// Starting with R=2 must fail, mentioning minRequired=3.
func TestValidate_ScenarioD_ConfigRefuse(t *testing.T) {
	c := Config{SegmentDuration: 2, SlotDuration: 10, OverlapDuration: 5, GracePercent: 40, RequiredSubtitlers: 2}
	d := c.Derive()
	if d.Stride != 5 || d.Grace != 4 || d.MinRequired != 3 {
		t.Fatalf("unexpected derived values: %+v", d)
	}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error for R below minRequired")
	}
}

func TestValidate_RequiredSubtitlersSufficient(t *testing.T) {
	c := Config{SegmentDuration: 2, SlotDuration: 10, OverlapDuration: 5, GracePercent: 40, RequiredSubtitlers: 3}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected config to validate, got %v", err)
	}
}

func TestValidate_OverlapMustBeLessThanSlotDuration(t *testing.T) {
	c := Config{SlotDuration: 10, OverlapDuration: 10, RequiredSubtitlers: 1}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when overlapDuration == slotDuration")
	}
}

func TestValidate_GracePercentRange(t *testing.T) {
	c := Config{SlotDuration: 10, OverlapDuration: 0, GracePercent: 101, RequiredSubtitlers: 1}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for gracePercent > 100")
	}
}

// Scenario B: D=6, O=0, g=0, R=1 is allowed since minRequired = ceil(6/6) = 1.
func TestValidate_ScenarioB_SingleSubtitlerAllowed(t *testing.T) {
	c := Config{SegmentDuration: 1, SlotDuration: 6, OverlapDuration: 0, GracePercent: 0, RequiredSubtitlers: 1}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected R=1 to validate when minRequired=1, got %v", err)
	}
}
