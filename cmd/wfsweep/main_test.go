package main

import (
	"testing"

	"wfsweep/internal/report"
)

func TestParseChunk(t *testing.T) {
	tests := []struct {
		name    string
		vals    []int
		args    []string
		want    *report.Chunk
		wantErr bool
	}{
		{name: "none"},
		{name: "start end", vals: []int{0}, args: []string{"0"}, want: &report.Chunk{Start: 0, End: 0}},
		{name: "comma form", vals: []int{3, 7}, want: &report.Chunk{Start: 3, End: 7}},
		{name: "missing end", vals: []int{3}, wantErr: true},
		{name: "stray arg", args: []string{"5"}, wantErr: true},
		{name: "bad end", vals: []int{1}, args: []string{"x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChunk(tt.vals, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChunk error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("parseChunk = %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("parseChunk = %+v, want %+v", got, tt.want)
			}
		})
	}
}
