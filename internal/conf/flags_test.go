package conf

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlags(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.SetDefault("model.path", "default.tflite")
	v.SetDefault("webserver.port", "8080")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("model", "", "")
	fs.String("port", "", "")
	fs.String("unmarked", "", "")
	MarkFlag(fs, "model", "model.path")
	MarkFlag(fs, "port", "webserver.port")

	require.NoError(t, BindFlags(v, fs))
	assert.Equal(t, "default.tflite", v.GetString("model.path"), "unchanged flag keeps the default")

	require.NoError(t, fs.Parse([]string{"--model", "/opt/m.onnx"}))
	assert.Equal(t, "/opt/m.onnx", v.GetString("model.path"))
	assert.Equal(t, "8080", v.GetString("webserver.port"))
	assert.False(t, v.IsSet("unmarked"))
}
