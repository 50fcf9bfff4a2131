// Package backend loads a pre-trained classifier model into one of the
// supported inference runtimes. It links against the TensorFlow Lite and
// ONNX Runtime C libraries, so only the command layer imports it.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// Resolve returns the backend name for settings, inferring it from the
// model file extension when model.backend is empty.
func Resolve(settings conf.ModelSettings) (string, error) {
	if settings.Backend != "" {
		return strings.ToLower(settings.Backend), nil
	}
	switch strings.ToLower(filepath.Ext(settings.Path)) {
	case ".tflite":
		return conf.BackendTFLite, nil
	case ".onnx":
		return conf.BackendONNX, nil
	}
	return "", errors.New(fmt.Errorf("cannot infer model backend from %q, set model.backend", filepath.Base(settings.Path))).
		Component("classifier").
		Category(errors.CategoryConfiguration).
		Build()
}

// Open loads the configured model and returns a ready Classifier. Errors
// are categorised as model-loading when the file cannot be read and
// model-initialization when the runtime rejects it.
func Open(settings conf.ModelSettings) (*classifier.Classifier, error) {
	log := classifier.GetLogger()
	start := time.Now()

	if strings.TrimSpace(settings.Path) == "" {
		return nil, errors.Newf("model.path is not set").
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}
	if _, err := os.Stat(settings.Path); err != nil {
		return nil, errors.New(fmt.Errorf("model file: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model_path", settings.Path).
			Build()
	}

	name, err := Resolve(settings)
	if err != nil {
		return nil, err
	}

	var model classifier.Model
	switch name {
	case conf.BackendTFLite:
		model, err = OpenTFLite(settings)
	case conf.BackendONNX:
		model, err = OpenONNX(settings)
	default:
		err = fmt.Errorf("unsupported model backend %q", name)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.Path).
			Context("backend", name).
			Timing("model-init", time.Since(start)).
			Build()
	}

	log.Info("model loaded",
		logger.String("path", settings.Path),
		logger.String("backend", name),
		logger.Int("input_size", settings.InputSize),
		logger.String("layout", settings.Layout),
		logger.Duration("elapsed", time.Since(start)))
	return classifier.New(model, settings), nil
}

// inputShape returns the 4D input shape for the configured layout.
func inputShape(settings conf.ModelSettings) []int64 {
	size := int64(settings.InputSize)
	if settings.Layout == conf.LayoutNCHW {
		return []int64{1, 3, size, size}
	}
	return []int64{1, size, size, 3}
}

func expectedLen(shape []int64) int {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return int(n)
}
