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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FlagConfig        = "config"
	FlagLogLevel      = "log-level"
	FlagLogFile       = "log-file"
	FlagLogMaxSize    = "log-max-size"
	FlagLogMaxBackups = "log-max-backups"
	FlagLogMaxAge     = "log-max-age"
	EnvPrefix         = "PROCUSAGE"
	DefaultConfigName = ".procusage"
	DefaultLogLevel   = "info"
	DefaultLogMaxSize = 10
	DefaultLogBackups = 5
	DefaultLogMaxAge  = 30
)

var cfgFile string

// 所有命令共用的日志，在initConfig中根据配置完成设置
var logger = logrus.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "procusage",
	Short: "进程使用数据服务",
	Long: "接收移动设备上传的SQLite数据库文件，将其中各个表的进程使用数据规范化为统一的记录，\n" +
		"并通过HTTP接口按时间范围查询。",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, FlagConfig, "", "配置文件路径（默认为$HOME/.procusage.yaml）")
	flags.String(FlagLogLevel, DefaultLogLevel, "日志级别：debug、info、warn或error")
	flags.String(FlagLogFile, "", "日志文件路径。为空时输出到标准输出")
	flags.Int(FlagLogMaxSize, DefaultLogMaxSize, "单个日志文件的大小上限，单位MB")
	flags.Int(FlagLogMaxBackups, DefaultLogBackups, "保留的旧日志文件数量")
	flags.Int(FlagLogMaxAge, DefaultLogMaxAge, "旧日志文件保留的天数")

	bindFlag("log.level", flags.Lookup(FlagLogLevel))
	bindFlag("log.file", flags.Lookup(FlagLogFile))
	bindFlag("log.max-size-mb", flags.Lookup(FlagLogMaxSize))
	bindFlag("log.max-backups", flags.Lookup(FlagLogMaxBackups))
	bindFlag("log.max-age-days", flags.Lookup(FlagLogMaxAge))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".procusage" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(DefaultConfigName)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	configErr := viper.ReadInConfig()

	if err := setupLogger(logger); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if configErr == nil {
		logger.Infof("使用配置文件%s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		logger.WithError(configErr).Warnf("读取配置文件%s出错", cfgFile)
	}
}

// setupLogger 按照log.*配置设置日志级别与输出位置
func setupLogger(l *logrus.Logger) error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("日志级别%s不正确", viper.GetString("log.level"))
	}

	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = time.RFC3339
	formatter.FullTimestamp = true

	l.SetFormatter(formatter)
	l.SetLevel(level)
	l.SetOutput(logOutput())
	return nil
}

func logOutput() io.Writer {
	file := viper.GetString("log.file")
	if file == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    viper.GetInt("log.max-size-mb"),
		MaxBackups: viper.GetInt("log.max-backups"),
		MaxAge:     viper.GetInt("log.max-age-days"),
	}
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
