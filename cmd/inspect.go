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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/packagewjx/procusage/internal/usage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	FlagStart  = "start"
	FlagEnd    = "end"
	FlagReport = "report"
	FlagOutput = "output"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect sqliteFile",
	Short: "读取本地数据库文件，输出规范化后的记录",
	Long: "使用与服务器相同的规则读取数据库文件，按start与end过滤后，以JSON数组输出记录。\n" +
		"指定report时同时输出每个表使用的布局以及被跳过的行。",
	Args: cobra.ExactArgs(1),
	PreRun: func(cmd *cobra.Command, args []string) {
		bindNormalizerFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		normalizer, err := usage.NewNormalizer(normalizerOptionsFromViper(), logger)
		if err != nil {
			return err
		}

		r, err := rangeFromFlags(cmd)
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if output, _ := cmd.Flags().GetString(FlagOutput); output != "" {
			f, err := os.Create(output)
			if err != nil {
				return errors.Wrapf(err, "创建输出文件%s出错", output)
			}
			defer f.Close()
			out = f
		}

		report := normalizer.NormalizeWithReport(cmd.Context(), args[0])
		if report.Err != nil {
			return errors.Wrapf(report.Err, "读取数据库%s出错", args[0])
		}

		withReport, _ := cmd.Flags().GetBool(FlagReport)
		return writeInspectResult(out, report, r, withReport)
	},
}

type inspectResult struct {
	Report  *usage.Report `json:"report"`
	Records interface{}   `json:"records"`
}

func writeInspectResult(out io.Writer, report *usage.Report, r usage.Range, withReport bool) error {
	records := usage.Filter(report.Records(), r)

	var v interface{} = records
	if withReport {
		v = &inspectResult{Report: report, Records: records}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "输出结果出错")
	}
	return nil
}

func rangeFromFlags(cmd *cobra.Command) (usage.Range, error) {
	r := usage.Range{}
	for _, name := range []string{FlagStart, FlagEnd} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetInt64(name)
		if err != nil {
			return r, fmt.Errorf("参数%s不正确：%v", name, err)
		}
		if name == FlagStart {
			r.Start = &v
		} else {
			r.End = &v
		}
	}
	return r, nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Int64(FlagStart, 0, "时间戳下限（包含）")
	inspectCmd.Flags().Int64(FlagEnd, 0, "时间戳上限（包含）")
	inspectCmd.Flags().Bool(FlagReport, false, "同时输出每个表的处理情况")
	inspectCmd.Flags().StringP(FlagOutput, "o", "", "输出文件。为空时输出到标准输出")
	addNormalizerFlags(inspectCmd)
}
