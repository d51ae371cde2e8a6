package query

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-webhooks/core"
)

type stubReaderService struct {
	listDeliveriesFn       func(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error)
	getDeliveryFn          func(ctx context.Context, id string) (core.DeliveryAttempt, error)
	listDeadLettersFn      func(ctx context.Context, filter core.DeadLetterFilter) (core.DeadLetterPage, error)
	getDeadLetterFn        func(ctx context.Context, id string) (core.DeadLetterEntry, error)
	deadLetterStatisticsFn func(ctx context.Context) (core.DeadLetterStatistics, error)
}

func (s stubReaderService) ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if s.listDeliveriesFn == nil {
		return core.DeliveryPage{}, nil
	}
	return s.listDeliveriesFn(ctx, filter)
}

func (s stubReaderService) GetDelivery(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if s.getDeliveryFn == nil {
		return core.DeliveryAttempt{}, nil
	}
	return s.getDeliveryFn(ctx, id)
}

func (s stubReaderService) ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) (core.DeadLetterPage, error) {
	if s.listDeadLettersFn == nil {
		return core.DeadLetterPage{}, nil
	}
	return s.listDeadLettersFn(ctx, filter)
}

func (s stubReaderService) GetDeadLetter(ctx context.Context, id string) (core.DeadLetterEntry, error) {
	if s.getDeadLetterFn == nil {
		return core.DeadLetterEntry{}, nil
	}
	return s.getDeadLetterFn(ctx, id)
}

func (s stubReaderService) DeadLetterStatistics(ctx context.Context) (core.DeadLetterStatistics, error) {
	if s.deadLetterStatisticsFn == nil {
		return core.DeadLetterStatistics{}, nil
	}
	return s.deadLetterStatisticsFn(ctx)
}

func TestListDeliveriesQuery_DelegatesFilter(t *testing.T) {
	expected := core.DeliveryPage{
		Items: []core.DeliveryAttempt{{ID: "att_1", Status: core.AttemptStatusSucceeded}},
		Total: 1, Page: 2, PerPage: 25,
	}
	svc := stubReaderService{
		listDeliveriesFn: func(_ context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
			if filter.SubscriptionID != "sub_1" || filter.Page != 2 || filter.PerPage != 25 {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return expected, nil
		},
	}

	page, err := NewListDeliveriesQuery(svc).Query(context.Background(), ListDeliveriesMessage{
		Filter: core.DeliveryFilter{SubscriptionID: "sub_1", Page: 2, PerPage: 25},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "att_1" {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestGetDeliveryQuery_Delegates(t *testing.T) {
	svc := stubReaderService{
		getDeliveryFn: func(_ context.Context, id string) (core.DeliveryAttempt, error) {
			if id != "att_1" {
				t.Fatalf("unexpected id %q", id)
			}
			return core.DeliveryAttempt{ID: id}, nil
		},
	}
	attempt, err := NewGetDeliveryQuery(svc).Query(context.Background(), GetDeliveryMessage{AttemptID: "att_1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if attempt.ID != "att_1" {
		t.Fatalf("unexpected attempt: %#v", attempt)
	}
}

func TestDeadLetterQueries_Delegate(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		svc := stubReaderService{
			listDeadLettersFn: func(_ context.Context, filter core.DeadLetterFilter) (core.DeadLetterPage, error) {
				if filter.Status != core.DeadLetterStatusPending {
					t.Fatalf("unexpected filter: %#v", filter)
				}
				return core.DeadLetterPage{Total: 3}, nil
			},
		}
		page, err := NewListDeadLettersQuery(svc).Query(context.Background(), ListDeadLettersMessage{
			Filter: core.DeadLetterFilter{Status: core.DeadLetterStatusPending},
		})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if page.Total != 3 {
			t.Fatalf("unexpected page: %#v", page)
		}
	})

	t.Run("get", func(t *testing.T) {
		svc := stubReaderService{
			getDeadLetterFn: func(_ context.Context, id string) (core.DeadLetterEntry, error) {
				return core.DeadLetterEntry{ID: id, Status: core.DeadLetterStatusPending}, nil
			},
		}
		entry, err := NewGetDeadLetterQuery(svc).Query(context.Background(), GetDeadLetterMessage{EntryID: "dl_1"})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if entry.ID != "dl_1" {
			t.Fatalf("unexpected entry: %#v", entry)
		}
	})

	t.Run("statistics", func(t *testing.T) {
		svc := stubReaderService{
			deadLetterStatisticsFn: func(context.Context) (core.DeadLetterStatistics, error) {
				return core.DeadLetterStatistics{
					ByStatus: map[core.DeadLetterStatus]int{core.DeadLetterStatusPending: 4},
					ByReason: map[string]int{"http_500": 4},
				}, nil
			},
		}
		stats, err := NewDeadLetterStatisticsQuery(svc).Query(context.Background(), DeadLetterStatisticsMessage{})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if stats.ByStatus[core.DeadLetterStatusPending] != 4 || stats.ByReason["http_500"] != 4 {
			t.Fatalf("unexpected statistics: %#v", stats)
		}
	})
}

func TestQueries_PropagateReaderErrors(t *testing.T) {
	boom := errors.New("storage offline")
	svc := stubReaderService{
		listDeliveriesFn: func(context.Context, core.DeliveryFilter) (core.DeliveryPage, error) {
			return core.DeliveryPage{}, boom
		},
	}
	if _, err := NewListDeliveriesQuery(svc).Query(context.Background(), ListDeliveriesMessage{}); !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestQueries_RequireReader(t *testing.T) {
	if _, err := NewListDeliveriesQuery(nil).Query(context.Background(), ListDeliveriesMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if _, err := NewDeadLetterStatisticsQuery(nil).Query(context.Background(), DeadLetterStatisticsMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	if err := (GetDeliveryMessage{}).Validate(); err == nil {
		t.Fatalf("empty get delivery message must fail validation")
	}
	if err := (GetDeadLetterMessage{}).Validate(); err == nil {
		t.Fatalf("empty get dead letter message must fail validation")
	}
	if err := (ListDeliveriesMessage{Filter: core.DeliveryFilter{Page: -1}}).Validate(); err == nil {
		t.Fatalf("negative page must fail validation")
	}
	if err := (ListDeadLettersMessage{}).Validate(); err != nil {
		t.Fatalf("empty list filter is valid: %v", err)
	}
	if err := (DeadLetterStatisticsMessage{}).Validate(); err != nil {
		t.Fatalf("statistics message is always valid: %v", err)
	}
}
