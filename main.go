package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/exhibit/photocache/internal/config"
	"github.com/exhibit/photocache/internal/logging"
	"github.com/exhibit/photocache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	serve       bool
	clearCache  bool
	resolveKeys []string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_root"] = cfg.Global.CacheRoot
		fields["cache_dir"] = cfg.Global.CacheDirName
		fields["object_store"] = cfg.ObjectStore.AuthMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.serve {
		if err := startDevServer(ctx, cfg, logger); err != nil {
			fmt.Fprintf(stdErr, "对象存储服务启动失败: %v\n", err)
			return 1
		}
		return 0
	}

	if !opts.clearCache && len(opts.resolveKeys) == 0 {
		fmt.Fprintln(stdErr, "未指定操作：使用 -resolve、-clear 或 -serve")
		return 2
	}

	svc, err := newServices(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_root"] = cfg.Global.CacheRoot
	fields["metadata_capacity"] = svc.Profiles.Capacity()
	fields["version"] = version.Full()
	logger.WithFields(fields).Debug("缓存初始化完成")

	if opts.clearCache {
		svc.Blobs.ClearCache(ctx)
	}

	code := 0
	for _, key := range opts.resolveKeys {
		path, err := svc.Blobs.Resolve(ctx, key)
		if err != nil {
			fmt.Fprintf(stdErr, "%s: %v\n", key, err)
			code = 1
			continue
		}
		fmt.Fprintf(stdOut, "%s\t%s\n", key, path)
	}
	return code
}

// keyList 支持重复传入 -resolve。
type keyList []string

func (k *keyList) String() string {
	return fmt.Sprint([]string(*k))
}

func (k *keyList) Set(value string) error {
	if value == "" {
		return fmt.Errorf("key 不能为空")
	}
	*k = append(*k, value)
	return nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("photocache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		serve      bool
		clearFlag  bool
		resolve    keyList
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PHOTOCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&serve, "serve", false, "启动开发用对象存储服务")
	fs.BoolVar(&clearFlag, "clear", false, "清空本地图片缓存")
	fs.Var(&resolve, "resolve", "解析远端 key 并输出本地路径，可重复指定")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if serve && (clearFlag || len(resolve) > 0) {
		return cliOptions{}, fmt.Errorf("-serve 不能与 -resolve/-clear 同时使用")
	}

	path := os.Getenv("PHOTOCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		serve:       serve,
		clearCache:  clearFlag,
		resolveKeys: resolve,
	}, nil
}
