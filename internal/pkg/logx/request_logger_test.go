package logx

import "testing"

func TestAnonymizeIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"192.168.10.42:5123", "192.168.10.0"},
		{"10.0.0.7", "10.0.0.0"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"[::1]:9000", "127.0.0.1"},
		{"2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::"},
		{"not-an-ip", "unknown_ip"},
	}

	for _, tc := range cases {
		if got := anonymizeIP(tc.in); got != tc.want {
			t.Errorf("anonymizeIP(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
