// =============================================================================
// fusiongate 主入口
// =============================================================================
// 命令行入口，读取 JSON 请求并输出融合、门控结果
//
// 使用方法:
//
//	fusiongate rank --input request.json           # 排序融合（数组输入为批量）
//	fusiongate rank --config fusiongate.yaml       # 指定配置文件
//	fusiongate gate --input gate.json              # 门控前向
//	fusiongate weights --input features.json       # 只计算门控权重
//	fusiongate fingerprint --attr lang=zh < q.txt  # 计算决策指纹
//	fusiongate version                             # 显示版本信息
//
// =============================================================================
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/fusiongate/config"
	"github.com/BaSui01/fusiongate/internal/metrics"
	"github.com/BaSui01/fusiongate/internal/telemetry"
	"github.com/BaSui01/fusiongate/rag/decision"
	"github.com/BaSui01/fusiongate/rag/evidence"
	"github.com/BaSui01/fusiongate/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "rank":
		err = runRank(args[1:], stdin, stdout, stderr)
	case "gate":
		err = runGate(args[1:], stdin, stdout, stderr)
	case "weights":
		err = runWeights(args[1:], stdin, stdout, stderr)
	case "fingerprint":
		err = runFingerprint(args[1:], stdin, stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 🔧 公共参数与运行环境
// =============================================================================

type commonFlags struct {
	configPath string
	input      string
	metrics    bool
	pretty     bool
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "Path to config file")
	fs.StringVar(&cf.input, "input", "-", "Request file (- for stdin)")
	fs.BoolVar(&cf.metrics, "metrics", false, "Dump collected metrics to stderr on exit")
	fs.BoolVar(&cf.pretty, "pretty", false, "Indent JSON output")
	return fs, cf
}

// app 单次命令运行所需的组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *evidence.Engine
	registry  *prometheus.Registry
	providers *telemetry.Providers
	closers   []func() error
	flags     *commonFlags
}

func setup(ctx context.Context, cf *commonFlags) (*app, error) {
	loader := config.NewLoader()
	if cf.configPath != "" {
		loader = loader.WithConfigPath(cf.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := initLogger(cfg.Log)
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		flags:    cf,
	}

	a.providers, err = telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	var collector *metrics.Collector
	var observer decision.Observer
	if cfg.Metrics.Enabled || cf.metrics {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, a.registry, logger)
		observer = collector
	}

	cache, closeCache, err := evidence.NewDecisionCache(ctx, cfg.Cache, logger, observer)
	if err != nil {
		a.close(ctx, io.Discard)
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	a.engine, err = evidence.New(cfg,
		evidence.WithLogger(logger),
		evidence.WithMetrics(collector),
		evidence.WithCache(cache),
	)
	if err != nil {
		a.close(ctx, io.Discard)
		return nil, err
	}

	logger.Debug("fusiongate ready",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("cache_backend", cfg.Cache.Backend))
	return a, nil
}

func (a *app) close(ctx context.Context, stderr io.Writer) {
	if a.flags != nil && a.flags.metrics {
		if err := dumpMetrics(a.registry, stderr); err != nil {
			a.logger.Warn("failed to dump metrics", zap.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.providers.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("failed to shutdown telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// =============================================================================
// 📊 rank / gate / weights 命令
// =============================================================================

func runRank(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs, cf := newFlagSet("rank", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := readInput(cf.input, stdin)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := setup(ctx, cf)
	if err != nil {
		return err
	}
	defer a.close(ctx, stderr)

	if isJSONArray(data) {
		var reqs []evidence.RankRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return types.NewError(types.ErrInvalidRequest, "invalid rank batch").WithCause(err)
		}
		out, err := a.engine.RankBatch(ctx, reqs)
		if err != nil {
			return err
		}
		return writeJSON(stdout, out, cf.pretty)
	}

	var req evidence.RankRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid rank request").WithCause(err)
	}
	out, err := a.engine.Rank(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(stdout, out, cf.pretty)
}

func runGate(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs, cf := newFlagSet("gate", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := readInput(cf.input, stdin)
	if err != nil {
		return err
	}

	var req evidence.GateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid gate request").WithCause(err)
	}

	ctx := context.Background()
	a, err := setup(ctx, cf)
	if err != nil {
		return err
	}
	defer a.close(ctx, stderr)

	out, err := a.engine.Gate(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(stdout, out, cf.pretty)
}

func runWeights(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs, cf := newFlagSet("weights", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := readInput(cf.input, stdin)
	if err != nil {
		return err
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid source metadata").WithCause(err)
	}

	ctx := context.Background()
	a, err := setup(ctx, cf)
	if err != nil {
		return err
	}
	defer a.close(ctx, stderr)

	return writeJSON(stdout, map[string][]float64{"weights": a.engine.GateWeights(raw)}, cf.pretty)
}

// =============================================================================
// 🔑 fingerprint 命令
// =============================================================================

// attrFlag 可重复的 key=value 参数
type attrFlag map[string]string

func (f attrFlag) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ",")
}

func (f attrFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("attribute must be key=value, got %q", v)
	}
	f[strings.TrimSpace(k)] = val
	return nil
}

type fingerprintOutput struct {
	Stage       string `json:"stage"`
	Normalized  string `json:"normalized"`
	Fingerprint string `json:"fingerprint"`
	DraftHash   string `json:"draft_hash,omitempty"`
}

func runFingerprint(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	stage := fs.String("stage", evidence.RankNamespace, "Decision stage")
	input := fs.String("input", "-", "Input text file (- for stdin)")
	text := fs.String("text", "", "Input text (overrides --input)")
	draft := fs.String("draft", "", "Draft text whose hash joins the attributes")
	rawInput := fs.Bool("raw", false, "Hash the input without normalization")
	attrs := attrFlag{}
	fs.Var(attrs, "attr", "Attribute key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := *text
	if in == "" {
		data, err := readInput(*input, stdin)
		if err != nil {
			return err
		}
		in = string(data)
	}

	out := fingerprintOutput{Stage: *stage, Normalized: decision.NormalizeText(in)}
	if *draft != "" {
		out.DraftHash = decision.DraftHash(*draft)
		attrs["draft"] = out.DraftHash
	}
	policy := decision.SlicePolicy{RawInput: *rawInput}
	out.Fingerprint = policy.Fingerprint(*stage, in, attrs)
	return writeJSON(stdout, out, false)
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "fusiongate %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Module:     %s\n", telemetry.BuildVersion())
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `fusiongate - Evidence fusion and gating engine

Usage:
  fusiongate <command> [options]

Commands:
  rank         Fuse multi-channel candidates (array input runs a batch)
  gate         Run the mixture gate forward pass
  weights      Compute gate weights from source metadata only
  fingerprint  Compute a decision fingerprint for a query
  version      Show version information
  help         Show this help message

Options for 'rank', 'gate', 'weights':
  --config <path>   Path to configuration file (YAML)
  --input <path>    Request file, - reads stdin (default -)
  --metrics         Dump Prometheus metrics to stderr on exit
  --pretty          Indent JSON output

Options for 'fingerprint':
  --stage <name>    Decision stage (default rank)
  --text <s>        Input text, otherwise read from --input
  --attr k=v        Extra attribute, repeatable
  --draft <s>       Draft text, its hash joins the attributes
  --raw             Skip text normalization

Examples:
  fusiongate rank --input request.json --pretty
  FUSIONGATE_FUSION_MODE=wpm fusiongate rank < request.json
  fusiongate gate --config /etc/fusiongate/config.yaml --input gate.json
  fusiongate fingerprint --text "What is RRF?" --attr lang=en`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		// stdout 留给 JSON 结果
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

// =============================================================================
// 🔧 输入输出
// =============================================================================

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return types.NewError(types.ErrInternalError, "failed to encode output").WithCause(err)
	}
	return nil
}

func dumpMetrics(reg prometheus.Gatherer, w io.Writer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
