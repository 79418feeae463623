package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		wantErr bool
	}{
		{name: "keycloak uuid", subject: "5f0c8a4e-3b1d-4c55-9a43-0c2b9b7c1e21"},
		{name: "opaque id", subject: "kc-alice"},
		{name: "empty", subject: "", wantErr: true},
		{name: "space", subject: "kc alice", wantErr: true},
		{name: "newline", subject: "kc-alice\n", wantErr: true},
		{name: "too long", subject: strings.Repeat("a", 256), wantErr: true},
		{name: "max length", subject: strings.Repeat("a", 255)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubject(tt.subject)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
