/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"github.com/packagewjx/procusage/internal/server"
	"github.com/packagewjx/procusage/internal/usage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	FlagPort          = "port"
	FlagHost          = "host"
	FlagDefaultSource = "default-source"
	FlagUploadDir     = "upload-dir"
	FlagMaxUpload     = "max-upload"
	FlagExtension     = "extension"
	FlagAllowedOrigin = "allowed-origin"
	FlagReadTimeout   = "read-timeout"
	FlagWriteTimeout  = "write-timeout"
	FlagShutdown      = "shutdown-timeout"
	FlagTables        = "tables"
	FlagDelimiter     = "delimiter"
	FlagLayout        = "layout"
	FlagTableLayout   = "table-layout"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "进程使用数据服务器",
	Long: "本服务器通过POST /upload接收SQLite数据库文件，校验通过后将其作为当前数据源。\n" +
		"GET /processos读取当前数据源中的processes1、processes2与processes3表，规范化为统一的记录，\n" +
		"并可通过start与end参数按时间戳过滤。每次查询都会重新读取文件，上传新文件后立即生效。\n",
	PreRun: func(cmd *cobra.Command, args []string) {
		bindNormalizerFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := server.NewServer(serverConfigFromViper(), logger)
		if err != nil {
			return err
		}

		return server.Start()
	},
}

func serverConfigFromViper() *server.ServerConfig {
	return &server.ServerConfig{
		Host:            viper.GetString("server.host"),
		Port:            viper.GetUint16("server.port"),
		DefaultSource:   viper.GetString("server.default-source"),
		UploadDir:       viper.GetString("server.upload-dir"),
		MaxUploadBytes:  viper.GetInt64("server.max-upload"),
		Extension:       viper.GetString("server.extension"),
		AllowedOrigin:   viper.GetString("server.allowed-origin"),
		ReadTimeout:     viper.GetDuration("server.read-timeout"),
		WriteTimeout:    viper.GetDuration("server.write-timeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdown-timeout"),
		Normalizer:      normalizerOptionsFromViper(),
	}
}

func normalizerOptionsFromViper() usage.Options {
	return usage.Options{
		Tables:       viper.GetStringSlice("normalizer.tables"),
		Delimiter:    viper.GetString("normalizer.delimiter"),
		Layout:       viper.GetString("normalizer.layout"),
		TableLayouts: viper.GetStringMapString("normalizer.table-layouts"),
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)

	flags := serverCmd.Flags()
	flags.Uint16P(FlagPort, "p", server.DefaultPort,
		"服务端口号")
	flags.String(FlagHost, "",
		"监听地址，为空时监听所有地址")
	flags.StringP(FlagDefaultSource, "s", "",
		"启动时使用的数据库文件。为空时使用工作目录下的"+server.DefaultSourceName)
	flags.StringP(FlagUploadDir, "u", "",
		"上传文件的保存目录。为空时使用系统临时目录")
	flags.Int64(FlagMaxUpload, server.DefaultMaxUploadBytes,
		"上传文件的大小上限，单位字节")
	flags.String(FlagExtension, server.DefaultExtension,
		"上传文件必须具有的扩展名")
	flags.String(FlagAllowedOrigin, server.DefaultAllowedOrigin,
		"跨域请求允许的来源")
	flags.Duration(FlagReadTimeout, server.DefaultReadTimeout,
		"读取请求的超时时间")
	flags.Duration(FlagWriteTimeout, server.DefaultWriteTimeout,
		"写入响应的超时时间")
	flags.Duration(FlagShutdown, server.DefaultShutdownTimeout,
		"收到退出信号后等待请求结束的时间")

	bindFlag("server.port", flags.Lookup(FlagPort))
	bindFlag("server.host", flags.Lookup(FlagHost))
	bindFlag("server.default-source", flags.Lookup(FlagDefaultSource))
	bindFlag("server.upload-dir", flags.Lookup(FlagUploadDir))
	bindFlag("server.max-upload", flags.Lookup(FlagMaxUpload))
	bindFlag("server.extension", flags.Lookup(FlagExtension))
	bindFlag("server.allowed-origin", flags.Lookup(FlagAllowedOrigin))
	bindFlag("server.read-timeout", flags.Lookup(FlagReadTimeout))
	bindFlag("server.write-timeout", flags.Lookup(FlagWriteTimeout))
	bindFlag("server.shutdown-timeout", flags.Lookup(FlagShutdown))

	addNormalizerFlags(serverCmd)
}

// addNormalizerFlags 规范化相关的参数，server与inspect共用同一组配置项
func addNormalizerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceP(FlagTables, "t", usage.DefaultTables,
		"按优先级排列的数据表名")
	flags.String(FlagDelimiter, usage.DefaultDelimiter,
		"打包指标字段的分隔符")
	flags.StringP(FlagLayout, "l", usage.LayoutAuto,
		"表结构布局：auto、generic或packed")
	flags.StringToString(FlagTableLayout, nil,
		"单独指定某个表的布局，格式为：table=layout")
}

// bindNormalizerFlags 在命令运行前绑定，避免两个命令的同名参数互相覆盖
func bindNormalizerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	bindFlag("normalizer.tables", flags.Lookup(FlagTables))
	bindFlag("normalizer.delimiter", flags.Lookup(FlagDelimiter))
	bindFlag("normalizer.layout", flags.Lookup(FlagLayout))
	bindFlag("normalizer.table-layouts", flags.Lookup(FlagTableLayout))
}
