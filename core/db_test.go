package core

import (
	"math"
	"reflect"
	"testing"
)

func TestParseOrderings(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want []DBOrdering
	}{
		{name: "empty", val: ""},
		{name: "single asc", val: "name", want: []DBOrdering{{Field: "name", Ascending: true}}},
		{name: "single desc", val: "-created_at", want: []DBOrdering{{Field: "created_at"}}},
		{
			name: "multiple with spaces", val: " -is_active, name ,",
			want: []DBOrdering{{Field: "is_active"}, {Field: "name", Ascending: true}},
		},
		{name: "lone dash", val: "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseOrderings(tt.val); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseOrderings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPagination_Offset_uncleaned(t *testing.T) {
	p := Pagination{Page: math.MaxInt / 100, Limit: 1000}
	if got := p.Offset(); got != (MaxPage-1)*MaxPageLimit {
		t.Errorf("Offset() = %d, want %d", got, (MaxPage-1)*MaxPageLimit)
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		in         Pagination
		total      int
		want       Pagination
		wantOffset int
		wantInfo   PageInfo
		wantStart  int
		wantEnd    int
	}{
		{
			name: "defaults", in: Pagination{}, total: 45,
			want: Pagination{Page: 1, Limit: DefaultPageLimit}, wantOffset: 0,
			wantInfo:  PageInfo{Page: 1, Limit: DefaultPageLimit, Total: 45, TotalPages: 3},
			wantStart: 0, wantEnd: 20,
		},
		{
			name: "last partial page", in: Pagination{Page: 3, Limit: 20}, total: 45,
			want: Pagination{Page: 3, Limit: 20}, wantOffset: 40,
			wantInfo:  PageInfo{Page: 3, Limit: 20, Total: 45, TotalPages: 3},
			wantStart: 40, wantEnd: 45,
		},
		{
			name: "out of range page", in: Pagination{Page: 9, Limit: 10}, total: 5,
			want: Pagination{Page: 9, Limit: 10}, wantOffset: 80,
			wantInfo:  PageInfo{Page: 9, Limit: 10, Total: 5, TotalPages: 1},
			wantStart: 5, wantEnd: 5,
		},
		{
			name: "limit clamped", in: Pagination{Page: -2, Limit: 1000}, total: 0,
			want: Pagination{Page: 1, Limit: MaxPageLimit}, wantOffset: 0,
			wantInfo: PageInfo{Page: 1, Limit: MaxPageLimit},
		},
		{
			name: "huge page", in: Pagination{Page: math.MaxInt / 100, Limit: 100}, total: 5,
			want: Pagination{Page: MaxPage, Limit: 100}, wantOffset: (MaxPage - 1) * 100,
			wantInfo:  PageInfo{Page: MaxPage, Limit: 100, Total: 5, TotalPages: 1},
			wantStart: 5, wantEnd: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Clean()
			if p != tt.want {
				t.Errorf("Clean() = %v, want %v", p, tt.want)
			}
			if got := p.Offset(); got != tt.wantOffset {
				t.Errorf("Offset() = %d, want %d", got, tt.wantOffset)
			}
			if got := NewPageInfo(p, tt.total); got != tt.wantInfo {
				t.Errorf("NewPageInfo() = %v, want %v", got, tt.wantInfo)
			}
			start, end := PageBounds(p, tt.total)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("PageBounds() = [%d, %d), want [%d, %d)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
