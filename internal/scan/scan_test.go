package scan

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewCollection(t *testing.T) {
	scans := []Scan{
		{Num: 4, MSLevel: 2, RT: 1.02, IsoLow: 425, IsoHigh: 450},
		{Num: 1, MSLevel: 1, RT: 1.0},
		{Num: 2, MSLevel: 2, RT: 1.01, IsoLow: 400, IsoHigh: 425},
		{Num: 5, MSLevel: 1, RT: 1.03},
		{Num: 6, MSLevel: 2, RT: 1.04, IsoLow: 400.001, IsoHigh: 425.001},
		{Num: 7, MSLevel: 3, RT: 1.05},
	}
	c, err := NewCollection(scans)
	if err != nil {
		t.Fatal(err)
	}
	wantWindows := []Window{{0, 400, 425}, {1, 425, 450}}
	if diff := cmp.Diff(wantWindows, c.Windows()); diff != "" {
		t.Errorf("windows (-want +got):\n%s", diff)
	}
	nums := func(s []Scan) []int {
		var n []int
		for _, x := range s {
			n = append(n, x.Num)
		}
		return n
	}
	if diff := cmp.Diff([]int{1, 5}, nums(c.MS1())); diff != "" {
		t.Errorf("MS1 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 6}, nums(c.MS2(0))); diff != "" {
		t.Errorf("MS2 window 0 (-want +got):\n%s", diff)
	}
	if c.MS2(5) != nil {
		t.Errorf("MS2 of unknown window must be nil")
	}
	if w := c.OwnerWindow(425, 425); w != 0 {
		t.Errorf("OwnerWindow(425)=%d, want 0", w)
	}
	if w := c.OwnerWindow(430, 431); w != 1 {
		t.Errorf("OwnerWindow(430-431)=%d, want 1", w)
	}
	if w := c.OwnerWindow(399.9, 400.9); w != 0 {
		t.Errorf("OwnerWindow(399.9-400.9)=%d, want 0", w)
	}
	if w := c.OwnerWindow(398, 399); w != -1 {
		t.Errorf("OwnerWindow(398-399)=%d, want -1", w)
	}
}

func TestNewCollectionErrors(t *testing.T) {
	_, err := NewCollection([]Scan{{Num: 1, MSLevel: 2, RT: 1, IsoLow: 400, IsoHigh: 425}})
	if !errors.Is(err, ErrNoMS1) {
		t.Errorf("got %v, want ErrNoMS1", err)
	}
	_, err = NewCollection([]Scan{{Num: 1, MSLevel: 1}, {Num: 2, MSLevel: 2}})
	if !errors.Is(err, ErrNoWindow) {
		t.Errorf("got %v, want ErrNoWindow", err)
	}
}

func TestFindRT(t *testing.T) {
	scans := []Scan{{RT: 1}, {RT: 2}, {RT: 3}}
	var tests = []struct {
		rt   float64
		want int
	}{
		{0.5, 0},
		{1, 0},
		{1.5, 0},
		{2.5, 1},
		{9, 2},
	}
	for _, tt := range tests {
		if got := FindRT(scans, tt.rt); got != tt.want {
			t.Errorf("FindRT(%v)=%d, want %d", tt.rt, got, tt.want)
		}
	}
	if got := len(ScansInRT(scans, 1.5, 3)); got != 2 {
		t.Errorf("ScansInRT returned %d scans, want 2", got)
	}
	if got := ScansInRT(scans, 4, 5); got != nil {
		t.Errorf("ScansInRT outside range = %v, want nil", got)
	}
}
