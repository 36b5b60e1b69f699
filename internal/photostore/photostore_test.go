package photostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtForMIME(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/gif", ".gif"},
		{"image/webp", ".webp"},
		{"application/octet-stream", ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtForMIME(tt.mimeType))
		})
	}
}

func TestMIMEForPath(t *testing.T) {
	assert.Equal(t, "image/png", MIMEForPath("job_1/a.PNG"))
	assert.Equal(t, "image/webp", MIMEForPath("job_1/a.webp"))
	assert.Equal(t, "image/jpeg", MIMEForPath("job_1/a.jpg"))
	assert.Equal(t, "image/jpeg", MIMEForPath("job_1/noext"))
}
