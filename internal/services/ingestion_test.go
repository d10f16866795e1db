package services

import "testing"

func TestMilestoneReachedFirstRun(t *testing.T) {
	if !milestoneReached(50, 50, 100) {
		t.Fatalf("first milestone at 50 not reached")
	}
	if milestoneReached(49, 50, 100) {
		t.Fatalf("milestone reached before first threshold")
	}
	if milestoneReached(51, 50, 100) {
		t.Fatalf("milestone reached between thresholds")
	}
}

func TestMilestoneReachedRefreshCadence(t *testing.T) {
	for _, count := range []int64{150, 250, 350} {
		if !milestoneReached(count, 50, 100) {
			t.Fatalf("refresh milestone at %d not reached", count)
		}
	}
	for _, count := range []int64{100, 200, 149} {
		if milestoneReached(count, 50, 100) {
			t.Fatalf("false milestone at %d", count)
		}
	}
}

func TestMilestoneReachedDisabled(t *testing.T) {
	if milestoneReached(1000, 0, 100) {
		t.Fatalf("milestones fired with first run disabled")
	}
	// No refresh cadence: only the first milestone ever fires.
	if !milestoneReached(50, 50, 0) {
		t.Fatalf("first milestone should fire without refresh cadence")
	}
	if milestoneReached(150, 50, 0) {
		t.Fatalf("refresh fired with cadence disabled")
	}
}
