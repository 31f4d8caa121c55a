package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkerConfig describes how to reach the diffusion worker.
type WorkerConfig struct {
	// URL attaches to an already running worker; Bin is spawned when empty.
	URL          string
	Bin          string
	Host         string
	PortStart    int
	PortEnd      int
	ExtraArgs    []string
	DType        string
	ReadyTimeout time.Duration
}

// WorkerLoader loads pipelines into a diffusion worker speaking the
// /v1/pipeline HTTP protocol.
type WorkerLoader struct {
	cfg    WorkerConfig
	client *http.Client
	log    zerolog.Logger
}

// NewWorkerLoader constructs a loader. The HTTP client has no global timeout;
// every call carries a context deadline instead.
func NewWorkerLoader(cfg WorkerConfig, log zerolog.Logger) *WorkerLoader {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	return &WorkerLoader{cfg: cfg, client: &http.Client{Transport: tr}, log: log.With().Str("component", "worker").Logger()}
}

type loadRequest struct {
	ModelPath     string `json:"model_path"`
	DeviceMap     string `json:"device_map,omitempty"`
	OffloadFolder string `json:"offload_folder,omitempty"`
	DType         string `json:"dtype,omitempty"`
	LowCPUMemory  bool   `json:"low_cpu_mem_usage"`
}

type optimizeRequest struct {
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
}

type generateRequest struct {
	Prompt        string  `json:"prompt"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Steps         int     `json:"num_inference_steps"`
	GuidanceScale float64 `json:"guidance_scale"`
	Seed          int64   `json:"seed,omitempty"`
	Stream        bool    `json:"stream"`
}

// streamEvent is one NDJSON line of a streamed generation.
type streamEvent struct {
	Type  string `json:"type"`
	Step  int    `json:"step"`
	Total int    `json:"total"`
	Data  string `json:"data"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type imageResponse struct {
	Image string `json:"image"`
}

type workerError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const codeCallbackUnsupported = "callback_unsupported"

// Load starts (or attaches to) a worker and asks it to load modelPath.
func (l *WorkerLoader) Load(ctx context.Context, modelPath string, opts LoadOptions) (Pipeline, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	p := &workerPipeline{client: l.client, log: l.log}
	if l.cfg.URL != "" {
		p.baseURL = strings.TrimRight(l.cfg.URL, "/")
		if !l.healthy(ctx, p.baseURL) {
			return nil, fmt.Errorf("worker not reachable at %s", p.baseURL)
		}
	} else {
		proc, err := l.spawn(ctx)
		if err != nil {
			return nil, err
		}
		p.proc = proc
		p.baseURL = proc.baseURL
	}
	dtype := opts.DType
	if dtype == "" {
		dtype = l.cfg.DType
	}
	req := loadRequest{
		ModelPath:     modelPath,
		DeviceMap:     opts.DeviceMap,
		OffloadFolder: opts.OffloadFolder,
		DType:         dtype,
		LowCPUMemory:  opts.LowCPUMemory,
	}
	if err := p.post(ctx, "/v1/pipeline/load", req, nil); err != nil {
		p.shutdown()
		return nil, fmt.Errorf("load %s: %w", modelPath, err)
	}
	l.log.Info().Str("event", "pipeline_loaded").Str("model", modelPath).Str("device_map", opts.DeviceMap).Msg("worker")
	return p, nil
}

// workerPipeline is a pipeline resident in a worker.
type workerPipeline struct {
	baseURL string
	client  *http.Client
	proc    *workerProc
	log     zerolog.Logger
	closed  sync.Once
}

func (p *workerPipeline) EnableAttentionSlicing(ctx context.Context, size string) error {
	return p.optimize(ctx, optimizeRequest{Op: "attention_slicing", Value: size})
}

func (p *workerPipeline) ResetDeviceMap(ctx context.Context) error {
	return p.optimize(ctx, optimizeRequest{Op: "reset_device_map"})
}

func (p *workerPipeline) EnableSequentialCPUOffload(ctx context.Context) error {
	return p.optimize(ctx, optimizeRequest{Op: "sequential_cpu_offload"})
}

func (p *workerPipeline) optimize(ctx context.Context, r optimizeRequest) error {
	err := p.post(ctx, "/v1/pipeline/optimize", r, nil)
	var he *httpStatusError
	if errors.As(err, &he) && he.status == http.StatusNotImplemented {
		return fmt.Errorf("%s: %w", r.Op, ErrUnsupported)
	}
	return err
}

// Generate posts one generation. With onStep set the worker streams NDJSON
// step events followed by the image; otherwise it returns a single JSON body.
func (p *workerPipeline) Generate(ctx context.Context, params Params, onStep StepFunc) (image.Image, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:        params.Prompt,
		Width:         params.Width,
		Height:        params.Height,
		Steps:         params.Steps,
		GuidanceScale: params.GuidanceScale,
		Seed:          params.Seed,
		Stream:        onStep != nil,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if onStep != nil && resp.StatusCode == http.StatusNotImplemented {
		return nil, ErrStepCallbackUnsupported
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(resp)
	}
	if onStep == nil {
		var out imageResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode worker response: %w", err)
		}
		return decodeImage(out.Image)
	}
	return readStream(ctx, resp.Body, onStep)
}

func readStream(ctx context.Context, body io.Reader, onStep StepFunc) (image.Image, error) {
	r := bufio.NewReader(body)
	for {
		line, err := r.ReadBytes('\n')
		if l := bytes.TrimSpace(line); len(l) > 0 {
			var ev streamEvent
			if e := json.Unmarshal(l, &ev); e != nil {
				return nil, fmt.Errorf("bad worker event: %w", e)
			}
			switch ev.Type {
			case "step":
				if cbErr := onStep(ev.Step, ev.Total); cbErr != nil {
					return nil, cbErr
				}
			case "image":
				return decodeImage(ev.Data)
			case "error":
				if ev.Code == codeCallbackUnsupported {
					return nil, ErrStepCallbackUnsupported
				}
				return nil, errors.New(ev.Error)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil, errors.New("worker stream ended without image")
			}
			return nil, err
		}
	}
}

func decodeImage(b64 string) (image.Image, error) {
	if b64 == "" {
		return nil, errors.New("worker returned no image")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Close unloads the pipeline and stops a spawned worker.
func (p *workerPipeline) Close() error {
	var err error
	p.closed.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = p.post(ctx, "/v1/pipeline/unload", struct{}{}, nil)
		if p.proc != nil {
			// the process is going away regardless of the unload answer
			err = nil
		}
		p.shutdown()
	})
	return err
}

func (p *workerPipeline) shutdown() {
	if p.proc != nil {
		p.proc.stop(p.log)
	}
}

func (p *workerPipeline) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type httpStatusError struct {
	status int
	msg    string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("worker http %d: %s", e.status, e.msg)
}

// errorFromResponse keeps the worker's message verbatim so callers can
// classify it (for example "CUDA out of memory").
func errorFromResponse(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var we workerError
	if json.Unmarshal(b, &we) == nil && we.Error != "" {
		return &httpStatusError{status: resp.StatusCode, msg: we.Error}
	}
	return &httpStatusError{status: resp.StatusCode, msg: strings.TrimSpace(string(b))}
}
