package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/calendar"
	"github.com/nugget/lumen/internal/health"
)

// SetHealthStore backs the health tools.
func (r *Registry) SetHealthStore(s *health.Store) {
	r.health = s
}

var rangeParams = map[string]any{
	"start": prop("string", "Range start, YYYY-MM-DD or YYYY-MM-DD HH:MM"),
	"end":   prop("string", "Range end; a date alone means the end of that day, capped at now"),
}

func (r *Registry) registerHealthTools() {
	r.Register(&Tool{
		Name:        "fetch_step_details",
		Description: "Get the user's step counts for a time range, bucketed by hour.",
		Parameters:  schema(rangeParams, "start", "end"),
		Status:      [2]string{"Reading Step Data", "正在读取步数"},
		Handler:     r.handleFetchSteps,
	})

	r.Register(&Tool{
		Name:        "fetch_energy_details",
		Description: "Get active and resting energy burned for a time range, bucketed by hour.",
		Parameters:  schema(rangeParams, "start", "end"),
		Status:      [2]string{"Reading Energy Data", "正在读取能量数据"},
		Handler:     r.handleFetchEnergy,
	})

	r.Register(&Tool{
		Name:        "fetch_nutrition_details",
		Description: "Get logged food energy and macronutrients for a time range, grouped by meal.",
		Parameters:  schema(rangeParams, "start", "end"),
		Status:      [2]string{"Reading Nutrition Data", "正在读取营养数据"},
		Handler:     r.handleFetchNutrition,
	})

	r.Register(&Tool{
		Name:        "make_nutrition_data",
		Description: "Log a food the user ate with its estimated energy (kcal) and macronutrients (g).",
		Parameters: schema(map[string]any{
			"name":          prop("string", "Food name"),
			"time":          prop("string", "When it was eaten; defaults to now"),
			"energy":        prop("number", "Energy in kcal"),
			"protein":       prop("number", "Protein in grams"),
			"carbohydrates": prop("number", "Carbohydrates in grams"),
			"fat":           prop("number", "Fat in grams"),
		}, "name"),
		Status:  [2]string{"Logging Nutrition", "正在记录营养"},
		Handler: r.handleMakeNutrition,
	})
}

// healthRange parses start and end. A date-only end extends to the end
// of that day, capped at now so "today" stays valid.
func (r *Registry) healthRange(args Args, loc *time.Location) (time.Time, time.Time, error) {
	start, _, err := calendar.ParseTime(args.String("start"), loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, dateOnly, err := calendar.ParseTime(args.String("end"), loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Second)
		if now := r.now(); end.After(now) {
			end = now
		}
	}
	return start, end, nil
}

func (r *Registry) healthCard(ctx context.Context, args Args, env *Env, tool, title string, byMeal bool, kinds ...health.Kind) (Result, error) {
	if r.health == nil {
		return Result{}, unavailable(tool, "health")
	}
	start, end, err := r.healthRange(args, env.loc())
	if err != nil {
		return Result{}, err
	}
	if err := health.CheckRange(start, end, r.now()); err != nil {
		return Text(rangeMessage(env, err)), nil
	}

	var card *health.Card
	if byMeal {
		card, err = r.health.ByMeal(ctx, start, end, env.loc(), kinds...)
	} else {
		card, err = r.health.Hourly(ctx, start, end, env.loc(), kinds...)
	}
	if err != nil {
		if errors.Is(err, health.ErrFutureRange) || errors.Is(err, health.ErrInvertedRange) {
			return Text(rangeMessage(env, err)), nil
		}
		return Result{}, err
	}
	card.Title = title
	env.Payloads.Health = append(env.Payloads.Health, *card)

	if len(card.Buckets) == 0 {
		return Text(env.Lang.Pick("No data recorded in that range.", "该时间段内没有记录。")), nil
	}
	return Result{Text: formatCard(card, kinds), Front: title}, nil
}

func rangeMessage(env *Env, err error) string {
	if errors.Is(err, health.ErrFutureRange) {
		return env.Lang.Pick("The range must not end in the future.", "时间范围不能晚于当前时间。")
	}
	return env.Lang.Pick("The start of the range must not be after its end.", "开始时间不能晚于结束时间。")
}

func (r *Registry) handleFetchSteps(ctx context.Context, args Args, env *Env) (Result, error) {
	return r.healthCard(ctx, args, env, "fetch_step_details",
		env.Lang.Pick("Steps", "步数"), false, health.KindSteps)
}

func (r *Registry) handleFetchEnergy(ctx context.Context, args Args, env *Env) (Result, error) {
	return r.healthCard(ctx, args, env, "fetch_energy_details",
		env.Lang.Pick("Energy", "能量"), false, health.KindActiveEnergy, health.KindBasalEnergy)
}

func (r *Registry) handleFetchNutrition(ctx context.Context, args Args, env *Env) (Result, error) {
	return r.healthCard(ctx, args, env, "fetch_nutrition_details",
		env.Lang.Pick("Nutrition", "营养"), true,
		health.KindDietaryEnergy, health.KindProtein, health.KindCarbohydrates, health.KindFat)
}

func (r *Registry) handleMakeNutrition(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.health == nil {
		return Result{}, unavailable("make_nutrition_data", "health")
	}
	food := health.Food{
		Name:          args.String("name"),
		Energy:        args.Float("energy", 0),
		Protein:       args.Float("protein", 0),
		Carbohydrates: args.Float("carbohydrates", 0),
		Fat:           args.Float("fat", 0),
	}
	if ts := args.String("time"); ts != "" {
		t, _, err := calendar.ParseTime(ts, env.loc())
		if err != nil {
			return Result{}, err
		}
		food.Time = t
	}
	if !food.Time.IsZero() && food.Time.After(r.now()) {
		return Text(rangeMessage(env, health.ErrFutureRange)), nil
	}

	samples, err := r.health.RecordFood(ctx, food)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text: env.Lang.Pick(
			fmt.Sprintf("Logged %s: %.0f kcal, protein %.1fg, carbohydrates %.1fg, fat %.1fg (%d entries).", food.Name, food.Energy, food.Protein, food.Carbohydrates, food.Fat, len(samples)),
			fmt.Sprintf("已记录 %s：%.0f 千卡，蛋白质 %.1f 克，碳水 %.1f 克，脂肪 %.1f 克（%d 条）。", food.Name, food.Energy, food.Protein, food.Carbohydrates, food.Fat, len(samples))),
		Front: env.Lang.Pick("Logged ", "已记录 ") + food.Name,
	}, nil
}

func formatCard(card *health.Card, kinds []health.Kind) string {
	var sb strings.Builder
	sb.WriteString("Total:")
	for _, k := range kinds {
		fmt.Fprintf(&sb, " %s %.0f %s;", k, card.Totals[k], k.Unit())
	}
	for _, b := range card.Buckets {
		sb.WriteString("\n" + b.Label + ":")
		keys := make([]string, 0, len(b.Totals))
		for k := range b.Totals {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s %.0f", k, b.Totals[health.Kind(k)])
		}
	}
	return sb.String()
}
