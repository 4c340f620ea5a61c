package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/roach88/worldforge/internal/es"
	"github.com/roach88/worldforge/internal/readmodel"
)

// evaluateAssertions returns one message per failed assertion.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertUsage:
			err = h.assertUsage(ctx, a)
		case AssertView:
			err = h.assertView(ctx, a)
		case AssertEventCount:
			err = h.assertEventCount(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func (h *Harness) assertUsage(ctx context.Context, a Assertion) error {
	summary, err := h.app.Gate.Summary(ctx, a.Owner)
	if err != nil {
		return err
	}
	if a.UsedBytes != nil && summary.UsedBytes != *a.UsedBytes {
		return fmt.Errorf("expected used_bytes %d, got %d", *a.UsedBytes, summary.UsedBytes)
	}
	if a.AvailableBytes != nil && summary.AvailableBytes != *a.AvailableBytes {
		return fmt.Errorf("expected available_bytes %d, got %d", *a.AvailableBytes, summary.AvailableBytes)
	}
	return nil
}

func (h *Harness) assertView(ctx context.Context, a Assertion) error {
	id := es.AggregateID{World: h.world(a.World), Entity: RefID(a.Ref)}
	var (
		view any
		err  error
	)
	switch a.EntityType {
	case "item":
		view, err = readmodel.Item(ctx, h.app.Views, id)
	case "talent":
		view, err = readmodel.Talent(ctx, h.app.Views, id)
	}
	if err != nil {
		return err
	}

	got, err := normalize(view)
	if err != nil {
		return err
	}
	want, err := normalize(resolveRefs(a.Expect))
	if err != nil {
		return err
	}
	gotFields, _ := got.(map[string]any)
	wantFields, _ := want.(map[string]any)

	keys := make([]string, 0, len(wantFields))
	for k := range wantFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !reflect.DeepEqual(gotFields[k], wantFields[k]) {
			return fmt.Errorf("field %s: expected %v, got %v", k, wantFields[k], gotFields[k])
		}
	}
	return nil
}

func (h *Harness) assertEventCount(ctx context.Context, a Assertion) error {
	id := es.AggregateID{World: h.world(a.World), Entity: RefID(a.Ref)}
	n, err := h.app.Store.CountEvents(ctx, id)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return fmt.Errorf("expected %d events for %s, got %d", *a.Count, a.Ref, n)
	}
	return nil
}

// normalize round-trips v through JSON so YAML-decoded expectations and
// struct views compare with the same types.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
