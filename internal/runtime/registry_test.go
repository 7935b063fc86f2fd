package runtime

import "testing"

func TestExtractRegistry(t *testing.T) {
	cases := []struct {
		image      string
		wantServer string
		wantOK     bool
	}{
		{"alpine", "", false},
		{"user/alpine", "", false},
		{"myregistry.io/alpine", "myregistry.io", true},
		{"localhost:5000/team/app", "localhost:5000", true},
		{"ghcr.io/org/app:latest", "ghcr.io", true},
	}

	for _, c := range cases {
		server, ok := ExtractRegistry(c.image)
		if ok != c.wantOK || server != c.wantServer {
			t.Errorf("ExtractRegistry(%q) = (%q, %v), want (%q, %v)", c.image, server, ok, c.wantServer, c.wantOK)
		}
	}
}
