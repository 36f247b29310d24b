package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/domain"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	paydomain "github.com/k-code-yt/go-storefront/internal/payment/domain"
	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeFulfilled        Outcome = "fulfilled"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeEventMissing     Outcome = "event_missing"
	OutcomeOrderNotFound    Outcome = "order_not_found"
	OutcomeAlreadyPaid      Outcome = "already_paid"
	OutcomeOrderNotPending  Outcome = "order_not_pending"
	OutcomeIgnored          Outcome = "ignored"
)

type Result struct {
	Outcome    Outcome
	OrderID    uuid.UUID
	Shortfalls []domain.Shortfall
}

type FulfillmentService struct {
	store  Store
	decode EventDecoder
	now    func() time.Time
}

func NewFulfillmentService(store Store, decode EventDecoder) *FulfillmentService {
	return &FulfillmentService{
		store:  store,
		decode: decode,
		now:    time.Now,
	}
}

// Process applies the side effects of one stored event. It is safe to call
// any number of times, concurrently, for the same event: processed_at is
// claimed first inside the transaction and the order moves only from
// PENDING, so exactly one call fulfills.
func (s *FulfillmentService) Process(ctx context.Context, eventID uuid.UUID) (*Result, error) {
	log := logrus.WithField("internal", eventID)

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if event == nil {
		log.Warn("FULFILL:EVENT_MISSING")
		return s.done(&Result{Outcome: OutcomeEventMissing}), nil
	}
	log = log.WithFields(logrus.Fields{
		"eventID":   event.EventID,
		"eventType": event.Type,
	})
	if event.IsProcessed() {
		log.Info("FULFILL:ALREADY_PROCESSED")
		return s.done(&Result{Outcome: OutcomeAlreadyProcessed}), nil
	}

	decoded, err := s.decode(event.Type, event.Payload)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		res = &Result{}
		claimed, err := tx.MarkEventProcessed(ctx, event.ID, s.now().UTC())
		if err != nil {
			return fmt.Errorf("mark event processed: %w", err)
		}
		if !claimed {
			res.Outcome = OutcomeAlreadyProcessed
			return nil
		}

		switch ev := decoded.(type) {
		case paydomain.CheckoutCompleted:
			return s.fulfillCheckout(ctx, tx, ev, res)
		default:
			res.Outcome = OutcomeIgnored
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	for _, sf := range res.Shortfalls {
		metrics.StockShortfalls.Inc()
		log.WithFields(logrus.Fields{
			"orderID":   res.OrderID,
			"variantID": sf.VariantID,
			"requested": sf.Requested,
		}).Warn("FULFILL:STOCK_SHORTFALL")
	}
	log.WithFields(logrus.Fields{
		"outcome": res.Outcome,
		"orderID": res.OrderID,
	}).Info("FULFILL:DONE")
	return s.done(res), nil
}

func (s *FulfillmentService) fulfillCheckout(ctx context.Context, tx Tx, ev paydomain.CheckoutCompleted, res *Result) error {
	order, err := resolveOrder(ctx, tx, ev)
	if err != nil {
		return err
	}
	if order == nil {
		res.Outcome = OutcomeOrderNotFound
		return nil
	}
	res.OrderID = order.ID

	switch {
	case order.IsPending():
	case order.Status == domain.OrderStatus_Paid:
		res.Outcome = OutcomeAlreadyPaid
		return nil
	default:
		logrus.WithFields(logrus.Fields{
			"orderID": order.ID,
			"status":  order.Status,
		}).Warn("FULFILL:ORDER_NOT_PENDING")
		res.Outcome = OutcomeOrderNotPending
		return nil
	}

	won, err := tx.MarkOrderPaid(ctx, order.ID, ev.SessionID, ev.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("mark order %s paid: %w", order.ID, err)
	}
	if !won {
		// Another event paid the order since it was read.
		res.Outcome = OutcomeAlreadyPaid
		return nil
	}

	items, err := tx.ListOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list items of %s: %w", order.ID, err)
	}
	for _, item := range items {
		ok, err := tx.DecrementStock(ctx, item.VariantID, item.Qty)
		if err != nil {
			return fmt.Errorf("decrement variant %s: %w", item.VariantID, err)
		}
		if !ok {
			res.Shortfalls = append(res.Shortfalls, domain.Shortfall{
				VariantID: item.VariantID,
				Requested: item.Qty,
			})
		}
	}
	res.Outcome = OutcomeFulfilled
	return nil
}

// resolveOrder prefers the order id embedded at checkout and falls back to
// the checkout session when the reference is absent or malformed.
func resolveOrder(ctx context.Context, tx Tx, ev paydomain.CheckoutCompleted) (*domain.Order, error) {
	if id, err := uuid.Parse(ev.OrderRef); err == nil {
		order, err := tx.FindOrderByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find order %s: %w", id, err)
		}
		return order, nil
	}
	if ev.SessionID == "" {
		return nil, nil
	}
	order, err := tx.FindOrderBySession(ctx, ev.SessionID)
	if err != nil {
		return nil, fmt.Errorf("find order by session %s: %w", ev.SessionID, err)
	}
	return order, nil
}

func (s *FulfillmentService) done(res *Result) *Result {
	metrics.FulfillmentOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	return res
}
