package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestParseDrags(t *testing.T) {
	got, err := parseDrags("10,20:15.5,22; 40,8:38,-2 ;")
	if err != nil {
		t.Fatalf("parseDrags: %v", err)
	}
	want := [][2]r2.Vec{
		{{X: 10, Y: 20}, {X: 15.5, Y: 22}},
		{{X: 40, Y: 8}, {X: 38, Y: -2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseDrags mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", ";", "1,2:3", "a,b:c,d"} {
		if _, err := parseDrags(bad); err == nil {
			t.Errorf("parseDrags(%q) succeeded", bad)
		}
	}
}
