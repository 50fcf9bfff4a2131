package backend

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// the onnxruntime environment is process wide
var ortMu sync.Mutex

// ONNXModel runs an ONNX model with pre-bound input and output tensors.
// It is not safe for concurrent use.
type ONNXModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// OpenONNX initialises the onnxruntime environment, if needed, and creates
// a session for the model.
func OpenONNX(settings conf.ModelSettings) (*ONNXModel, error) {
	if err := initEnvironment(settings.ONNXLibrary); err != nil {
		return nil, err
	}

	outputs := settings.Outputs
	if outputs <= 0 {
		outputs = 1
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape(settings)...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(outputs)))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	threads := classifier.ThreadCount(settings.Threads)
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		classifier.GetLogger().Warn("failed to set ONNX intra-op threads", logger.Error(err))
	}

	session, err := ort.NewAdvancedSession(settings.Path,
		[]string{settings.InputName}, []string{settings.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		options)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	classifier.GetLogger().Debug("ONNX session ready",
		logger.Int("threads", threads),
		logger.String("input", settings.InputName),
		logger.String("output", settings.OutputName))
	return &ONNXModel{session: session, input: input, output: output}, nil
}

func initEnvironment(library string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// Predict copies input into the bound input tensor, runs the session and
// returns a copy of the output tensor.
func (m *ONNXModel) Predict(input []float32) ([]float32, error) {
	data := m.input.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(data))
	}
	copy(data, input)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	values := m.output.GetData()
	out := make([]float32, len(values))
	copy(out, values)
	return out, nil
}

// Close destroys the session and its tensors. The runtime environment is
// left initialised for other sessions.
func (m *ONNXModel) Close() error {
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
		m.output = nil
	}
	return errors.Join(errs...)
}
