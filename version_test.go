package capnpcompat

import "testing"

func TestSupportedFormatRange(t *testing.T) {
	min, max := SupportedFormatRange()
	minParsed, err := parseSemverStrict(min)
	if err != nil {
		t.Fatalf("min: %v", err)
	}
	maxParsed, err := parseSemverStrict(max)
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if compareSemver(minParsed, maxParsed) > 0 {
		t.Errorf("min (%s) should be <= max (%s)", min, max)
	}
}

func TestIsSupportedFormat(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    bool
		wantErr bool
	}{
		{name: "exact min", version: MinSupportedFormat, want: true},
		{name: "exact max", version: MaxTestedFormat, want: true},
		{name: "patch inside range", version: "0.1.7", want: true},
		{name: "too old", version: "0.0.9", want: false},
		{name: "too new", version: "1.0.0", want: false},
		{name: "whitespace trimmed", version: " 0.2.0 ", want: true},
		{name: "empty", version: "", wantErr: true},
		{name: "two parts", version: "0.1", wantErr: true},
		{name: "letters", version: "a.b.c", wantErr: true},
		{name: "negative", version: "-1.0.0", wantErr: true},
		{name: "plus sign", version: "+0.1.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsSupportedFormat(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("IsSupportedFormat(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("IsSupportedFormat(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}

func TestCompareSemver(t *testing.T) {
	tests := []struct {
		a, b semver
		want int
	}{
		{semver{1, 2, 3}, semver{1, 2, 3}, 0},
		{semver{2, 0, 0}, semver{1, 9, 9}, 1},
		{semver{1, 2, 9}, semver{1, 3, 0}, -1},
		{semver{1, 2, 3}, semver{1, 2, 4}, -1},
	}
	for _, tt := range tests {
		if got := compareSemver(tt.a, tt.b); got != tt.want {
			t.Errorf("compareSemver(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
