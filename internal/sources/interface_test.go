package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAppID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"com.phonepe.app", "com.phonepe.app", true},
		{"  com.phonepe.app ", "com.phonepe.app", true},
		{"https://play.google.com/store/apps/details?id=net.one97.paytm&hl=en_IN", "net.one97.paytm", true},
		{"https://play.google.com/store/apps/details?hl=en&id=com.sbi.lotusintouch", "com.sbi.lotusintouch", true},
		{"phonepe", "", false},
		{"", "", false},
		{"https://example.com/nothing", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractAppID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://play.google.com/store"))
	assert.False(t, IsURL("com.phonepe.app"))
	assert.False(t, IsURL("ftp://host/x"))
}
