package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/packagewjx/procusage/internal/usage"
	"github.com/packagewjx/procusage/pkg/api"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPort            = 5000
	DefaultSourceName      = "live.sqlite"
	DefaultExtension       = ".sqlite"
	DefaultMaxUploadBytes  = 16 * 1024 * 1024
	DefaultAllowedOrigin   = "*"
	DefaultReadTimeout     = time.Minute
	DefaultWriteTimeout    = time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

type ServerConfig struct {
	Host            string        // 监听地址，为空时监听所有地址
	Port            uint16        // 本服务器监听端口
	DefaultSource   string        // 启动时使用的数据库文件。为空时使用工作目录下的live.sqlite
	UploadDir       string        // 上传文件的保存目录。为空时使用系统临时目录
	MaxUploadBytes  int64         // 上传文件的大小上限
	Extension       string        // 上传文件必须具有的扩展名
	AllowedOrigin   string        // Access-Control-Allow-Origin的值
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration // 收到信号后等待请求结束的时间
	Normalizer      usage.Options
}

func (config ServerConfig) String() string {
	marshal, _ := json.Marshal(config)
	return string(marshal)
}

func (config *ServerConfig) Complete() error {
	if config.Port < 1024 {
		return fmt.Errorf("端口号应该在1024到65535之间，现在为%d", config.Port)
	}

	if config.MaxUploadBytes < 0 {
		return fmt.Errorf("上传文件大小上限不能为负数，现在为%d", config.MaxUploadBytes)
	} else if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if config.DefaultSource == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "获取工作目录出错")
		}
		config.DefaultSource = filepath.Join(wd, DefaultSourceName)
	}

	if config.UploadDir == "" {
		config.UploadDir = os.TempDir()
	}

	if config.Extension == "" {
		config.Extension = DefaultExtension
	}
	if !strings.HasPrefix(config.Extension, ".") {
		config.Extension = "." + config.Extension
	}
	config.Extension = strings.ToLower(config.Extension)

	if config.AllowedOrigin == "" {
		config.AllowedOrigin = DefaultAllowedOrigin
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	return config.Normalizer.Complete()
}

func (config *ServerConfig) Addr() string {
	return net.JoinHostPort(config.Host, strconv.Itoa(int(config.Port)))
}

type Server interface {
	// 启动HTTP服务器，直到收到SIGINT或SIGTERM
	Start() error
	Handler() http.Handler
	Active() *ActiveSource
}

func NewServer(config *ServerConfig, logger logrus.FieldLogger) (Server, error) {
	if err := config.Complete(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	normalizer, err := usage.NewNormalizer(config.Normalizer, logger)
	if err != nil {
		return nil, err
	}

	uploads, err := NewUploadStore(config.UploadDir)
	if err != nil {
		return nil, err
	}

	return &serverImpl{
		config:     config,
		active:     NewActiveSource(config.DefaultSource),
		uploads:    uploads,
		normalizer: normalizer,
		logger:     logger.WithField("component", "server"),
	}, nil
}

type serverImpl struct {
	config     *ServerConfig
	active     *ActiveSource
	uploads    *UploadStore
	normalizer *usage.Normalizer
	logger     logrus.FieldLogger
}

func (s *serverImpl) Active() *ActiveSource {
	return s.active
}

func (s *serverImpl) Start() error {
	s.logger.Infof("服务器启动。配置：%v", s.config)

	server := s.buildServer()
	errCh := make(chan error, 1)
	go s.serve(server, errCh)

	// 注册信号接收器
	termSigChan := make(chan os.Signal, 1)
	signal.Notify(termSigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(termSigChan)

	select {
	case sig := <-termSigChan:
		s.logger.Infof("收到信号%v，关闭服务器", sig)
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "关闭HTTP服务器失败")
		}
	case err := <-errCh:
		return errors.Wrap(err, "HTTP服务器出现错误")
	}

	// 等待HTTP服务器结束
	if err := <-errCh; err != nil {
		return errors.Wrap(err, "HTTP关闭出现错误")
	}

	return nil
}

func (s *serverImpl) Handler() http.Handler {
	mux := http.NewServeMux()
	middleware := mergeMiddlewares(
		withPanicGuard(s.logger),
		withLogging(s.logger),
		withCORS(s.config.AllowedOrigin),
	)

	mux.Handle(api.RouteUpload, middleware(allowMethods(s.handleUpload, http.MethodPost)))
	mux.Handle(api.RouteProcesses, middleware(allowMethods(s.handleProcesses, http.MethodGet)))
	mux.Handle(api.RouteHealth, middleware(allowMethods(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte("OK"))
	}, http.MethodGet)))

	return mux
}

func (s *serverImpl) buildServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

func (s *serverImpl) serve(server *http.Server, errCh chan<- error) {
	s.logger.Infof("API服务器启动，监听%s", server.Addr)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		errCh <- err
		return
	}

	s.logger.Infof("API服务器结束")
	errCh <- nil
}
