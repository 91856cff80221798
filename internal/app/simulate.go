package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"market-news-alerts/internal/engine"
	"market-news-alerts/internal/model"
	"market-news-alerts/internal/prefs"
)

// SimulateEvent 构造一个事件并完整走一遍评估与推送流程。
// 使用独立的内存偏好与历史，不影响运行中的服务状态。
func (a *App) SimulateEvent(ctx context.Context, opts SimulateOptions) error {
	impact, err := model.ParseImpact(opts.Impact)
	if err != nil {
		return err
	}

	ev := model.MarketEvent{
		ID:               uuid.NewString(),
		Commodities:      opts.Commodities,
		Impact:           impact,
		Headline:         opts.Headline,
		OccurredAt:       time.Now().UTC(),
		PriorityOverride: opts.Override,
	}

	store := prefs.NewMemoryStore()
	eng := engine.New(store, a.newDispatcher(), engine.Options{
		Retention: a.Config.Engine.Retention,
	}, a.Logger)

	decision, err := eng.SubmitEvent(ctx, opts.UserID, ev)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "event:   %s\nallowed: %t\nreason:  %s\n", ev.ID, decision.Allowed, decision.Reason)
	return nil
}
