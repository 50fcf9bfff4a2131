// Package classifier turns a chest X-ray image into a Pneumonia or Normal
// label with a confidence percentage. The numeric work is delegated to a
// Model backend; see the backend package for TFLite and ONNX runtimes.
package classifier

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// Label is a classification outcome.
type Label string

const (
	LabelPneumonia Label = "Pneumonia"
	LabelNormal    Label = "Normal"
)

// Threshold is the score above which an image is labelled Pneumonia.
const Threshold = 0.5

var (
	ErrCorruptImage = errors.NewStd("image could not be decoded")
	ErrClosed       = errors.NewStd("classifier is closed")
)

// Result is the outcome of one classification.
type Result struct {
	Label      Label
	Confidence float64 // percent in [0,100], two decimals
	Score      float64 // raw positive-class score in [0,1]
}

// Model is a loaded inference backend. Implementations are not required to
// be safe for concurrent use; Classifier serialises calls to Predict.
type Model interface {
	// Predict runs one forward pass over a preprocessed batch of one and
	// returns the raw output values.
	Predict(input []float32) ([]float32, error)
	Close() error
}

// Decide applies the decision rule to a raw score. Scores outside [0,1]
// are clamped and NaN is treated as 0.
func Decide(score float64) Result {
	switch {
	case math.IsNaN(score), score < 0:
		score = 0
	case score > 1:
		score = 1
	}

	if score > Threshold {
		return Result{Label: LabelPneumonia, Confidence: toPercent(score), Score: score}
	}
	return Result{Label: LabelNormal, Confidence: toPercent(1 - score), Score: score}
}

func toPercent(v float64) float64 {
	return math.Round(v*10000) / 100
}

// positiveScore picks the pneumonia score out of the model output. A single
// value is a sigmoid output; with two values the second is the positive
// class.
func positiveScore(out []float32) (float64, error) {
	switch len(out) {
	case 1:
		return float64(out[0]), nil
	case 2:
		return float64(out[1]), nil
	default:
		return 0, fmt.Errorf("unexpected model output length %d", len(out))
	}
}

// Classifier wraps a Model with image preprocessing and the decision rule.
// It is safe for concurrent use.
type Classifier struct {
	model     Model
	inputSize int
	layout    string
	log       logger.Logger

	mu     sync.Mutex
	closed bool
}

// New wraps an already loaded model. The model is owned by the returned
// Classifier and released by Close.
func New(model Model, settings conf.ModelSettings) *Classifier {
	size := settings.InputSize
	if size <= 0 {
		size = conf.DefaultInputSize
	}
	layout := settings.Layout
	if layout == "" {
		layout = conf.LayoutNHWC
	}
	return &Classifier{
		model:     model,
		inputSize: size,
		layout:    layout,
		log:       GetLogger(),
	}
}

// InputSize returns the square input edge the model expects.
func (c *Classifier) InputSize() int {
	return c.inputSize
}

// Classify decodes the image at path and classifies it.
func (c *Classifier) Classify(path string) (Result, error) {
	img, err := Decode(path)
	if err != nil {
		return Result{}, err
	}
	return c.ClassifyImage(img)
}

// ClassifyImage classifies an already decoded image.
func (c *Classifier) ClassifyImage(img image.Image) (Result, error) {
	input := Preprocess(img, c.inputSize, c.layout)

	start := time.Now()
	out, err := c.predict(input)
	if err != nil {
		return Result{}, err
	}

	score, err := positiveScore(out)
	if err != nil {
		return Result{}, inferenceError(err)
	}

	res := Decide(score)
	c.log.Debug("image classified",
		logger.String("label", string(res.Label)),
		logger.Float64("score", res.Score),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (c *Classifier) predict(input []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, inferenceError(ErrClosed)
	}
	out, err := c.model.Predict(input)
	if err != nil {
		return nil, inferenceError(err)
	}
	// backends may reuse their output buffer
	return append([]float32(nil), out...), nil
}

// Close releases the model. Classify fails with ErrClosed afterwards.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.model.Close()
}

func inferenceError(err error) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryInference).
		Build()
}
