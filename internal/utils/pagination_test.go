package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, size, max    int
		wantPage, wantSize int
	}{
		{0, 0, 100, 1, 1},
		{-3, 20, 100, 1, 20},
		{2, 500, 100, 2, 100},
		{5, 500, 0, 5, 500},
	}
	for _, tc := range cases {
		p, s := ClampPage(tc.page, tc.size, tc.max)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("ClampPage(%d, %d, %d) = (%d, %d); want (%d, %d)",
				tc.page, tc.size, tc.max, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestOffset(t *testing.T) {
	if got := Offset(1, 20); got != 0 {
		t.Fatalf("Offset(1, 20) = %d", got)
	}
	if got := Offset(3, 20); got != 40 {
		t.Fatalf("Offset(3, 20) = %d", got)
	}
	if got := Offset(0, 20); got != 0 {
		t.Fatalf("Offset(0, 20) = %d", got)
	}
}
