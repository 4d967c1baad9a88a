package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

type OnnxConfig struct {
	ModelPath string
	BoardSize int
	Channels  int
	// DisableCUDA keeps the session on the CPU provider.
	DisableCUDA bool
	Threads     int
}

// OnnxModel runs a policy/value network exported with one input ("input",
// [B, C, S, S]) and two outputs ("policy" logits [B, S*S], "value" [B, 1]).
// It is not safe for concurrent use; a Batcher serialises access.
type OnnxModel struct {
	cfg     OnnxConfig
	session *ort.DynamicAdvancedSession
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxModel(cfg OnnxConfig, log zerolog.Logger) (*OnnxModel, error) {
	if cfg.BoardSize <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("onnx model needs board size and channels, got %d and %d", cfg.BoardSize, cfg.Channels)
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}

	if runtime.GOOS == "linux" {
		ensureLinuxLibraryPath()
		if p := findSharedLibrary(); p != "" {
			ort.SetSharedLibraryPath(p)
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many searches share one session through the batcher; keep ORT's own
	// pools small.
	options.SetIntraOpNumThreads(cfg.Threads)
	options.SetInterOpNumThreads(1)

	if !cfg.DisableCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				log.Warn().Err(err).Msg("failed to append CUDA provider")
			} else {
				log.Info().Msg("CUDA provider enabled")
			}
		} else {
			log.Warn().Err(err).Msg("failed to create CUDA options")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", cfg.ModelPath, err)
	}

	return &OnnxModel{cfg: cfg, session: session}, nil
}

func (m *OnnxModel) Run(input []float32, batch int) ([]float32, []float32, error) {
	s := int64(m.cfg.BoardSize)
	cells := m.cfg.BoardSize * m.cfg.BoardSize
	b := int64(batch)

	inputTensor, err := ort.NewTensor(ort.NewShape(b, int64(m.cfg.Channels), s, s), input)
	if err != nil {
		return nil, nil, fmt.Errorf("input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(b, int64(cells)))
	if err != nil {
		return nil, nil, fmt.Errorf("policy tensor: %w", err)
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(b, 1))
	if err != nil {
		return nil, nil, fmt.Errorf("value tensor: %w", err)
	}
	defer valueTensor.Destroy()

	if err := m.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		return nil, nil, err
	}

	// Tensor memory is released on return; copy out.
	policy := make([]float32, batch*cells)
	copy(policy, policyTensor.GetData())
	for i := 0; i < batch; i++ {
		softmax(policy[i*cells : (i+1)*cells])
	}
	value := make([]float32, batch)
	copy(value, valueTensor.GetData())
	return policy, value, nil
}

func (m *OnnxModel) Close() error {
	return m.session.Destroy()
}

func findSharedLibrary() string {
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	cwd, _ := os.Getwd()
	candidates := []string{
		"libonnxruntime.so",
		"libonnxruntime.so.1",
		"libonnxruntime.so.1.23.2",
	}
	// Tests run from the package directory; walk up to the repo root.
	dir := cwd
	for up := 0; up < 6; up++ {
		for _, name := range candidates {
			abs := filepath.Join(dir, name)
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// ensureLinuxLibraryPath prepends CUDA and Torch library directories from a
// project-local .venv to LD_LIBRARY_PATH.
func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	candidateDirs := []string{cwd}
	patterns := []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "torch", "lib"),
	}
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		candidateDirs = append(candidateDirs, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	existingSet := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p != "" {
			existingSet[p] = true
		}
	}

	toAdd := make([]string, 0, len(candidateDirs))
	for _, d := range candidateDirs {
		if existingSet[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			toAdd = append(toAdd, d)
		}
	}
	if len(toAdd) == 0 {
		return
	}

	newVal := strings.Join(toAdd, ":")
	if existing != "" {
		newVal = newVal + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", newVal)
}
