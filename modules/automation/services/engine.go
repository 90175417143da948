package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lumacrm/luma/modules/automation/domain/ports"
	notifyservices "github.com/lumacrm/luma/modules/notify/services"
	"github.com/lumacrm/luma/pkg/lifecycle"
	"go.uber.org/zap"
)

// Engine reacts to lifecycle events: for each enabled workflow bound to the
// event's (sub-module, trigger) pair whose condition matches the record
// payload, it writes a notification for the workflow's recipient.
type Engine struct {
	store  ports.WorkflowStore
	notify notifyservices.NotificationService
	log    *zap.Logger
}

func NewEngine(store ports.WorkflowStore, notify notifyservices.NotificationService, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, notify: notify, log: log}
}

// Handle is the dispatcher subscription point. Failures are logged, never
// propagated: a broken workflow must not affect the operation that emitted
// the event.
func (e *Engine) Handle(ctx context.Context, ev lifecycle.Event) {
	if ev.SubModuleCode == "" {
		return
	}

	workflows, err := e.store.ListEnabledForTrigger(ctx, ev.TenantID, ev.SubModuleCode, string(ev.Kind))
	if err != nil {
		e.log.Error("workflow lookup failed",
			zap.String("tenant_id", ev.TenantID),
			zap.String("sub_module_code", ev.SubModuleCode),
			zap.String("trigger", string(ev.Kind)),
			zap.Error(err))
		return
	}

	for _, wf := range workflows {
		cond, err := CompileCondition(wf.ConditionExpr)
		if err != nil {
			// The service compiles at save time, so this is a stored
			// expression that has gone bad (e.g. manual edit).
			e.log.Error("workflow condition failed to compile",
				zap.String("workflow_id", wf.ID),
				zap.Error(err))
			continue
		}
		if !cond.Matches(ev.Payload) {
			continue
		}

		if _, err := e.notify.Notify(ctx, ev.TenantID, wf.RecipientID, wf.Name, RenderTemplate(wf.MessageTemplate, ev.Payload)); err != nil {
			e.log.Error("workflow notification failed",
				zap.String("workflow_id", wf.ID),
				zap.String("recipient_id", wf.RecipientID),
				zap.Error(err))
		}
	}
}

var templateKey = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// RenderTemplate substitutes {key} placeholders with the payload's values.
// Unknown keys are left as written.
func RenderTemplate(tmpl string, payload map[string]any) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return templateKey.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := payload[key]
		if !ok || v == nil {
			return m
		}
		switch val := v.(type) {
		case string:
			return val
		case bool:
			return strconv.FormatBool(val)
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return fmt.Sprint(val)
		}
	})
}
