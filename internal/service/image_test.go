package service

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexora/internal/testutil"
)

func TestImageValidator_Formats(t *testing.T) {
	v := NewImageValidator(0)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	var jpg, gf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))
	require.NoError(t, gif.Encode(&gf, img, nil))

	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"png", testutil.TinyPNG(t, 2, 2), "image/png"},
		{"jpeg", jpg.Bytes(), "image/jpeg"},
		{"gif", gf.Bytes(), "image/gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := v.Validate(&UploadFile{Filename: "x." + tt.name, Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ct)
		})
	}
}

func TestImageValidator_RejectsEmpty(t *testing.T) {
	_, err := NewImageValidator(1).Validate(&UploadFile{Filename: "a.png"})
	assert.Error(t, err)
}
