package beacon

import (
	"net"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, port := range []int{1, 80, 45678, 65535} {
		got, ok := Decode(Encode(port))
		if !ok || got != port {
			t.Errorf("Decode(Encode(%d)) = (%d, %v)", port, got, ok)
		}
	}
}

func TestEncodeFormat(t *testing.T) {
	if got := string(Encode(40123)); got != "Kristine Server Discovery:40123" {
		t.Errorf("unexpected payload %q", got)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"Kristine Server Discovery:",
		"Kristine Server Discovery:abc",
		"Kristine Server Discovery:0",
		"Kristine Server Discovery:-12",
		"Kristine Server Discovery:+12",
		"Kristine Server Discovery:70000",
		"Kristine Server Discovery: 123",
		"kristine server discovery:123",
		"Other Server Discovery:123",
		"123",
	}
	for _, payload := range tests {
		if _, ok := Decode([]byte(payload)); ok {
			t.Errorf("Decode(%q) accepted", payload)
		}
	}
}

func TestRejected(t *testing.T) {
	tests := []struct {
		ip   net.IP
		want bool
	}{
		{net.IPv4zero, true},
		{net.IPv4bcast, true},
		{nil, true},
		{net.ParseIP("192.168.1.20"), false},
		{net.ParseIP("127.0.0.1"), false},
	}
	for _, tt := range tests {
		if got := Rejected(tt.ip); got != tt.want {
			t.Errorf("Rejected(%v) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
