package backend

import (
	"fmt"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// TFLiteModel runs a TensorFlow Lite model. It is not safe for concurrent
// use.
type TFLiteModel struct {
	model       *tflite.Model
	interpreter *tflite.Interpreter
	inputLen    int
}

// OpenTFLite loads a .tflite model and allocates its tensors.
func OpenTFLite(settings conf.ModelSettings) (*TFLiteModel, error) {
	log := classifier.GetLogger()

	model := tflite.NewModelFromFile(settings.Path)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model")
	}

	threads := classifier.ThreadCount(settings.Threads)
	options := tflite.NewInterpreterOptions()

	if settings.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	m := &TFLiteModel{model: model, interpreter: interpreter}
	input := interpreter.GetInputTensor(0)
	if input == nil {
		_ = m.Close()
		return nil, fmt.Errorf("cannot get input tensor")
	}
	m.inputLen = len(input.Float32s())
	if want := expectedLen(inputShape(settings)); m.inputLen != want {
		_ = m.Close()
		return nil, fmt.Errorf("model expects %d input values, model.inputsize %d with layout %s gives %d",
			m.inputLen, settings.InputSize, settings.Layout, want)
	}

	log.Debug("TFLite interpreter ready",
		logger.Int("threads", threads),
		logger.Bool("xnnpack", settings.UseXNNPACK))
	return m, nil
}

// Predict copies input into the input tensor, invokes the interpreter and
// returns a copy of the first output tensor.
func (m *TFLiteModel) Predict(input []float32) ([]float32, error) {
	if len(input) != m.inputLen {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), m.inputLen)
	}
	tensor := m.interpreter.GetInputTensor(0)
	if tensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(tensor.Float32s(), input)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil {
		return nil, fmt.Errorf("cannot get output tensor")
	}
	values := output.Float32s()
	out := make([]float32, len(values))
	copy(out, values)
	return out, nil
}

// Close releases the interpreter and model.
func (m *TFLiteModel) Close() error {
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}
