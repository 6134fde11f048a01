package manifest

import "testing"

func TestToModuleName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"my-app", "my_app"},
		{"models", "models"},
		{"MyApp", "my_app"},
		{"myApp", "my_app"},
		{"http_client", "http_client"},
		{"2d-graphics", "_2d_graphics"},
		{"trailing-", "trailing"},
	}
	for _, tt := range tests {
		if got := ToModuleName(tt.in); got != tt.want {
			t.Errorf("ToModuleName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   bool
	}{
		{"util", true},
		{"acme.widgets", true},
		{"_private", true},
		{"", false},
		{"a..b", false},
		{"9lives", false},
		{"has space", false},
		{"class", false},
		{"acme.def", false},
	}
	for _, tt := range tests {
		if got := ValidPrefix(tt.prefix); got != tt.want {
			t.Errorf("ValidPrefix(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}

func TestIsReservedPrefix(t *testing.T) {
	if !IsReservedPrefix("math") || !IsReservedPrefix("math.extra") {
		t.Error("math should be reserved")
	}
	if IsReservedPrefix("mathematics") {
		t.Error("mathematics should not be reserved")
	}
}
