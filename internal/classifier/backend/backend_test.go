package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		path    string
		want    string
		wantErr bool
	}{
		{"explicit tflite", "tflite", "model.bin", conf.BackendTFLite, false},
		{"explicit onnx overrides extension", "ONNX", "model.tflite", conf.BackendONNX, false},
		{"inferred tflite", "", "/models/pneumonia.tflite", conf.BackendTFLite, false},
		{"inferred onnx", "", "/models/Pneumonia.ONNX", conf.BackendONNX, false},
		{"keras h5 is not loadable", "", "/models/pneumonia.h5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(conf.ModelSettings{Backend: tt.backend, Path: tt.path})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenFailsFast(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()
		_, err := Open(conf.ModelSettings{})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Open(conf.ModelSettings{Path: filepath.Join(t.TempDir(), "absent.tflite")})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("garbage tflite", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "garbage.tflite")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a flatbuffer"), 0o600))

		_, err := Open(conf.ModelSettings{Path: path, InputSize: 224, Layout: conf.LayoutNHWC})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
	})
}

func TestInputShape(t *testing.T) {
	t.Parallel()

	nhwc := inputShape(conf.ModelSettings{InputSize: 224, Layout: conf.LayoutNHWC})
	assert.Equal(t, []int64{1, 224, 224, 3}, nhwc)
	assert.Equal(t, 224*224*3, expectedLen(nhwc))

	nchw := inputShape(conf.ModelSettings{InputSize: 150, Layout: conf.LayoutNCHW})
	assert.Equal(t, []int64{1, 3, 150, 150}, nchw)
}

// TestRealModel runs a real model end to end when PNEUMODETECT_TEST_MODEL
// points at one.
func TestRealModel(t *testing.T) {
	path := os.Getenv("PNEUMODETECT_TEST_MODEL")
	if path == "" {
		t.Skip("PNEUMODETECT_TEST_MODEL not set")
	}

	settings := conf.ModelSettings{
		Path:       path,
		InputSize:  conf.DefaultInputSize,
		Layout:     conf.LayoutNHWC,
		InputName:  "input",
		OutputName: "output",
		Outputs:    1,
	}
	c, err := Open(settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	img, err := classifier.Decode(filepath.Join("testdata", "xray.png"))
	if err != nil {
		t.Skip("testdata/xray.png not present")
	}
	res, err := c.ClassifyImage(img)
	require.NoError(t, err)
	assert.Contains(t, []classifier.Label{classifier.LabelPneumonia, classifier.LabelNormal}, res.Label)
	assert.InDelta(t, 75, res.Confidence, 25)
}
