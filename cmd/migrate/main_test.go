package main

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		file    string
		want    int64
		wantErr bool
	}{
		{"001_init.up.sql", 1, false},
		{"012_indices.up.sql", 12, false},
		{"noversion.sql", 0, true},
		{"x_bad.up.sql", 0, true},
	}
	for _, tc := range cases {
		got, err := parseVersion(tc.file)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseVersion(%q): expected error, got %d", tc.file, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseVersion(%q): got (%d, %v), want %d", tc.file, got, err, tc.want)
		}
	}
}
