package main

import "testing"

func TestReadyChecksSkipKafkaWhenSyncDisabled(t *testing.T) {
	checks := readyChecks(nil, "kafka:9092", false)
	if len(checks) != 1 || checks[0].Name != "postgres" {
		t.Fatalf("degraded instance should only gate on postgres, got %+v", checks)
	}
}

func TestReadyChecksIncludeKafkaWhenConsuming(t *testing.T) {
	checks := readyChecks(nil, "kafka:9092", true)
	if len(checks) != 2 {
		t.Fatalf("want postgres and kafka checks, got %+v", checks)
	}
	if checks[0].Name != "postgres" || checks[1].Name != "kafka" {
		t.Fatalf("unexpected check names: %q, %q", checks[0].Name, checks[1].Name)
	}
}
