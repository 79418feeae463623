package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantOK  bool
	}{
		{name: "authorization header", headers: map[string]string{"Authorization": "Bearer abc.def.ghi"}, want: "abc.def.ghi", wantOK: true},
		{name: "access token header", headers: map[string]string{"X-Access-Token": "abc.def.ghi"}, want: "abc.def.ghi", wantOK: true},
		{
			name:    "authorization wins",
			headers: map[string]string{"Authorization": "Bearer first", "X-Access-Token": "second"},
			want:    "first",
			wantOK:  true,
		},
		{name: "basic auth", headers: map[string]string{"Authorization": "Basic dXNlcjpwdw=="}},
		{name: "empty bearer", headers: map[string]string{"Authorization": "Bearer "}},
		{name: "no headers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			got, ok := ExtractBearerToken(h)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := ExtractBearerToken(nil)
	assert.False(t, ok)
}
