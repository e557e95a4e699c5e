package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/lumen/internal/memory"
)

// SetMemoryStore backs save_memory, retrieve_memory and update_memory.
func (r *Registry) SetMemoryStore(store *memory.Store) {
	r.memory = store
}

func (r *Registry) registerMemoryTools() {
	r.Register(&Tool{
		Name: "save_memory",
		Description: "Save a short fact about the user for future conversations. " +
			"Use when the user shares lasting personal information or asks you to remember something.",
		Parameters: schema(map[string]any{
			"content": prop("string", "The fact to remember, written as a complete sentence"),
		}, "content"),
		Status:  [2]string{"Saving Memory", "正在保存记忆"},
		Handler: r.handleSaveMemory,
	})

	r.Register(&Tool{
		Name:        "retrieve_memory",
		Description: "Look up saved facts about the user. Leave query empty to list recent memories.",
		Parameters: schema(map[string]any{
			"query": prop("string", "Words describing what to look for"),
			"limit": prop("integer", "Maximum number of memories (default 5)"),
		}),
		Status:  [2]string{"Retrieving Memory", "正在检索记忆"},
		Handler: r.handleRetrieveMemory,
	})

	r.Register(&Tool{
		Name:        "update_memory",
		Description: "Replace a saved fact that has changed. Identify the old fact by its wording.",
		Parameters: schema(map[string]any{
			"original": prop("string", "The saved fact as it currently reads"),
			"content":  prop("string", "The corrected fact"),
		}, "original", "content"),
		Status:  [2]string{"Updating Memory", "正在更新记忆"},
		Handler: r.handleUpdateMemory,
	})
}

func (r *Registry) handleSaveMemory(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.memory == nil {
		return Result{}, unavailable("save_memory", "memory")
	}
	m, err := r.memory.Save(ctx, args.String("content"))
	if err != nil {
		return Result{}, fmt.Errorf("save memory: %w", err)
	}
	r.logger.Info("memory saved", "id", m.ID)
	return Result{
		Text:  env.Lang.Pick("Memory saved: ", "已保存记忆：") + m.Content,
		Front: env.Lang.Pick("Memory updated", "记忆已更新"),
	}, nil
}

func (r *Registry) handleRetrieveMemory(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.memory == nil {
		return Result{}, unavailable("retrieve_memory", "memory")
	}
	found, err := r.memory.Retrieve(ctx, args.String("query"), args.Int("limit", 5))
	if err != nil {
		return Result{}, fmt.Errorf("retrieve memory: %w", err)
	}
	if len(found) == 0 {
		return Text(env.Lang.Pick("No matching memories.", "没有找到相关记忆。")), nil
	}
	var sb strings.Builder
	sb.WriteString(env.Lang.Pick("Saved memories:\n", "已保存的记忆：\n"))
	for _, m := range found {
		fmt.Fprintf(&sb, "- %s (%s)\n", m.Content, m.UpdatedAt.In(env.loc()).Format("2006-01-02"))
	}
	return Result{
		Text:  strings.TrimRight(sb.String(), "\n"),
		Front: env.Lang.Pick(fmt.Sprintf("Found %d memories", len(found)), fmt.Sprintf("找到 %d 条记忆", len(found))),
	}, nil
}

func (r *Registry) handleUpdateMemory(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.memory == nil {
		return Result{}, unavailable("update_memory", "memory")
	}
	best, err := r.memory.Best(ctx, args.String("original"))
	if err != nil {
		return Result{}, fmt.Errorf("find memory: %w", err)
	}
	if best == nil {
		return Text(env.Lang.Pick(
			"No saved memory matches that description. Use save_memory to store it as new.",
			"没有与之匹配的记忆，请使用 save_memory 保存为新记忆。")), nil
	}
	m, err := r.memory.Update(ctx, best.ID, args.String("content"))
	if err != nil {
		return Result{}, fmt.Errorf("update memory: %w", err)
	}
	return Result{
		Text:  env.Lang.Pick(fmt.Sprintf("Memory updated from %q to %q.", best.Content, m.Content), fmt.Sprintf("记忆已从“%s”更新为“%s”。", best.Content, m.Content)),
		Front: env.Lang.Pick("Memory updated", "记忆已更新"),
	}, nil
}
