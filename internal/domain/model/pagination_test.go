package model

import (
	"math"
	"testing"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, DefaultPageLimit},
		{-3, 5, 1, 5},
		{2, 500, 2, MaxPageLimit},
		{4, 10, 4, 10},
		{math.MaxInt, 50, MaxPage, 50},
	}
	for _, c := range cases {
		p, l := NormalizePage(c.page, c.limit)
		if p != c.wantPage || l != c.wantLimit {
			t.Errorf("NormalizePage(%d, %d) = %d, %d; want %d, %d", c.page, c.limit, p, l, c.wantPage, c.wantLimit)
		}
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(3, 20, 41)
	if p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}
	if p.Offset() != 40 {
		t.Errorf("Offset() = %d, want 40", p.Offset())
	}
	if NewPagination(1, 20, 0).TotalPages != 0 {
		t.Error("empty result should have zero pages")
	}
}

func TestOffsetStaysPositiveForHugePage(t *testing.T) {
	page, limit := NormalizePage(math.MaxInt, math.MaxInt)
	off := NewPagination(page, limit, 0).Offset()
	if off < 0 || off > math.MaxInt32 {
		t.Errorf("Offset() = %d for page %d limit %d", off, page, limit)
	}
}
