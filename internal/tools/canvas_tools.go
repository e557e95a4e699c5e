package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/nugget/lumen/internal/canvas"
)

func (r *Registry) registerCanvasTools() {
	r.Register(&Tool{
		Name: "create_canvas",
		Description: "Open a canvas: a document the user can edit alongside the chat. " +
			"Use for long-form writing, code or HTML the user will iterate on.",
		Parameters: schema(map[string]any{
			"title":   prop("string", "Document title"),
			"content": prop("string", "Full document content"),
			"type":    map[string]any{"type": "string", "enum": []string{canvas.TypeText, canvas.TypeCode, canvas.TypeHTML}},
		}, "title", "content"),
		Status:  [2]string{"Creating Canvas", "正在创建画布"},
		Handler: r.handleCreateCanvas,
	})

	r.Register(&Tool{
		Name: "edit_canvas",
		Description: "Edit the open canvas with regular-expression substitutions applied in order to its title and content. " +
			"Patterns use .NET syntax (lookaround allowed, multiline mode on); replacements may use $1 or ${name}.",
		Parameters: schema(map[string]any{
			"rules": map[string]any{
				"type": "array",
				"items": schema(map[string]any{
					"pattern":     prop("string", "Regular expression"),
					"replacement": prop("string", "Replacement text"),
				}, "pattern", "replacement"),
			},
		}, "rules"),
		Status:  [2]string{"Editing Canvas", "正在编辑画布"},
		Handler: r.handleEditCanvas,
	})
}

func (r *Registry) handleCreateCanvas(_ context.Context, args Args, env *Env) (Result, error) {
	env.Canvas = canvas.New(args.String("title"), args.Get("content").String(), args.String("type"))
	env.Payloads.Canvas = env.Canvas.Clone()
	return Result{
		Text:  env.Lang.Pick("The canvas is open and shown to the user. Do not repeat its content.", "画布已打开并展示给用户，请勿重复其内容。"),
		Front: env.Lang.Pick("Created canvas: ", "已创建画布：") + env.Canvas.Title,
	}, nil
}

func (r *Registry) handleEditCanvas(_ context.Context, args Args, env *Env) (Result, error) {
	if env.Canvas == nil {
		return Text(env.Lang.Pick("There is no open canvas. Use create_canvas first.", "当前没有打开的画布，请先使用 create_canvas。")), nil
	}

	var rules []canvas.Rule
	args.Get("rules").ForEach(func(_, v gjson.Result) bool {
		rules = append(rules, canvas.Rule{
			Pattern:     v.Get("pattern").String(),
			Replacement: v.Get("replacement").String(),
		})
		return true
	})

	matched, err := env.Canvas.Edit(rules)
	if err != nil {
		var ce *canvas.CompileError
		if errors.As(err, &ce) {
			return Result{}, fmt.Errorf("canvas unchanged, fix the pattern and try again: %w", ce)
		}
		return Result{}, err
	}
	env.Payloads.Canvas = env.Canvas.Clone()
	return Result{
		Text:  env.Lang.Pick(fmt.Sprintf("Canvas updated (%d substitutions).", matched), fmt.Sprintf("画布已更新（%d 处替换）。", matched)),
		Front: env.Lang.Pick("Edited canvas", "已编辑画布"),
	}, nil
}
