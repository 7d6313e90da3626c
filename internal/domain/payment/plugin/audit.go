package plugin

import (
	"maps"
	"reflect"

	"cashier/internal/domain/payment/model"
)

type snapshot struct {
	params  model.PayParams
	payload any
	status  model.Status
	state   map[string]any
	aborted bool
}

func takeSnapshot(pc *model.ContextState) snapshot {
	return snapshot{
		params:  pc.Params.Clone(),
		payload: pc.ProviderPayload,
		status:  pc.CurrentStatus,
		state:   maps.Clone(pc.State),
		aborted: pc.Aborted(),
	}
}

// audit 记录插件修改了哪些字段，只在 debug 模式下调用
func (d *Driver) audit(name string, hook HookName, before, after snapshot) {
	log := func(field string, from, to any) {
		d.log.Debug("plugin modified context",
			"plugin", name, "hook", string(hook), "field", field, "before", from, "after", to)
	}

	b, a := before.params, after.params
	if b.OrderID != a.OrderID {
		log("params.order_id", b.OrderID, a.OrderID)
	}
	if b.Amount != a.Amount {
		log("params.amount", b.Amount, a.Amount)
	}
	if b.Currency != a.Currency {
		log("params.currency", b.Currency, a.Currency)
	}
	if b.Description != a.Description {
		log("params.description", b.Description, a.Description)
	}
	if b.AutoPoll != a.AutoPoll {
		log("params.auto_poll", b.AutoPoll, a.AutoPoll)
	}
	diffMap("params.extra.", b.Extra, a.Extra, log)
	diffMap("state.", before.state, after.state, log)

	if before.status != after.status {
		log("current_status", before.status, after.status)
	}
	if !reflect.DeepEqual(before.payload, after.payload) {
		log("provider_payload", before.payload, after.payload)
	}
	if before.aborted != after.aborted {
		log("aborted", before.aborted, after.aborted)
	}
}

func diffMap(prefix string, before, after map[string]any, log func(string, any, any)) {
	for k, av := range after {
		bv, ok := before[k]
		if !ok || !reflect.DeepEqual(bv, av) {
			log(prefix+k, bv, av)
		}
	}
	for k, bv := range before {
		if _, ok := after[k]; !ok {
			log(prefix+k, bv, nil)
		}
	}
}
