package tools

import (
	"context"
	"fmt"

	"github.com/nugget/lumen/internal/codeexec"
)

// SetCodeRunner backs execute_python_code.
func (r *Registry) SetCodeRunner(runner *codeexec.Runner) {
	r.runner = runner
}

func (r *Registry) registerCodeTools() {
	r.Register(&Tool{
		Name: "execute_python_code",
		Description: "Run a Python 3 script and return its output. Use for calculations, data processing " +
			"and anything that needs exact results. Print what you need to see.",
		Parameters: schema(map[string]any{
			"code": prop("string", "Complete Python source"),
		}, "code"),
		Status:  [2]string{"Running Code", "正在运行代码"},
		Handler: r.handleExecutePython,
	})
}

func (r *Registry) handleExecutePython(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.runner == nil {
		return Result{}, unavailable("execute_python_code", "code")
	}
	code := args.Get("code").String()
	res, err := r.runner.Run(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("run code: %w", err)
	}
	output := res.Stdout
	if res.Stderr != "" {
		output += res.Stderr
	}
	env.Payloads.Code = append(env.Payloads.Code, CodeBlock{Code: code, Output: output, ExitCode: res.ExitCode})

	front := env.Lang.Pick("Code ran successfully", "代码运行成功")
	switch {
	case res.TimedOut:
		front = env.Lang.Pick("Code timed out", "代码运行超时")
	case res.ExitCode != 0:
		front = env.Lang.Pick(fmt.Sprintf("Code exited with status %d", res.ExitCode), fmt.Sprintf("代码退出状态 %d", res.ExitCode))
	}
	return Result{Text: res.Format(), Front: front}, nil
}
