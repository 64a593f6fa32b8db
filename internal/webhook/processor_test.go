package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/api/internal/apperr"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
)

const testSecret = "whsec_test"

func signPayload(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, time.Now().Unix(), object))
}

type memDeduper struct {
	claimed map[string]bool
}

func newMemDeduper() *memDeduper {
	return &memDeduper{claimed: make(map[string]bool)}
}

func (d *memDeduper) Begin(_ context.Context, eventID string) (bool, error) {
	if d.claimed[eventID] {
		return true, nil
	}
	d.claimed[eventID] = true
	return false, nil
}

func (d *memDeduper) Release(_ context.Context, eventID string) error {
	delete(d.claimed, eventID)
	return nil
}

type fakeClientStore struct {
	clients map[string]models.Client
	ensured []string
}

func newFakeClientStore() *fakeClientStore {
	return &fakeClientStore{clients: make(map[string]models.Client)}
}

func (s *fakeClientStore) EnsureByEmail(_ context.Context, id, email, name string) (models.Client, error) {
	s.ensured = append(s.ensured, email)
	if c, ok := s.clients[email]; ok {
		return c, nil
	}
	c := models.Client{ID: id, Email: email, Name: name, Status: models.ClientStatusActive}
	s.clients[email] = c
	return c, nil
}

func (s *fakeClientStore) FindByEmail(_ context.Context, email string) (models.Client, error) {
	if c, ok := s.clients[email]; ok {
		return c, nil
	}
	return models.Client{}, repository.ErrClientNotFound
}

type transitionCall struct {
	intentID string
	to       models.PaymentStatus
}

// fakePaymentStore mirrors the repository's conditional writes: a transition
// only applies from PENDING or PROCESSING, so terminal rows stay put.
type fakePaymentStore struct {
	attachMatched bool
	attachCalls   [][2]string
	transitions   []transitionCall
	upserts       []models.Payment
	statuses      map[string]models.PaymentStatus
	transitionErr error
}

func (s *fakePaymentStore) AttachIntentBySession(_ context.Context, sessionID, intentID string) (bool, error) {
	s.attachCalls = append(s.attachCalls, [2]string{sessionID, intentID})
	return s.attachMatched, nil
}

func (s *fakePaymentStore) UpsertByIntentID(_ context.Context, payment models.Payment) error {
	s.upserts = append(s.upserts, payment)
	return nil
}

func (s *fakePaymentStore) TransitionIntentStatus(_ context.Context, intentID string, to models.PaymentStatus, _ *time.Time, _ *string) (bool, error) {
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	if cur, tracked := s.statuses[intentID]; tracked &&
		cur != models.PaymentStatusPending && cur != models.PaymentStatusProcessing {
		return false, nil
	}
	s.statuses[intentID] = to
	s.transitions = append(s.transitions, transitionCall{intentID: intentID, to: to})
	return true, nil
}

type fakeSubscriptionStore struct {
	byStripeID map[string]models.Subscription
	upserts    []models.Subscription
	canceled   []string
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{byStripeID: make(map[string]models.Subscription)}
}

func (s *fakeSubscriptionStore) GetByStripeID(_ context.Context, stripeID string) (models.Subscription, error) {
	if sub, ok := s.byStripeID[stripeID]; ok {
		return sub, nil
	}
	return models.Subscription{}, repository.ErrSubscriptionNotFound
}

// Upsert mirrors the repository's terminal-state guard: a CANCELED row is
// never overwritten.
func (s *fakeSubscriptionStore) Upsert(_ context.Context, sub models.Subscription) error {
	if existing, ok := s.byStripeID[sub.StripeSubscriptionID]; ok &&
		existing.Status == models.SubscriptionStatusCanceled {
		return nil
	}
	s.upserts = append(s.upserts, sub)
	s.byStripeID[sub.StripeSubscriptionID] = sub
	return nil
}

func (s *fakeSubscriptionStore) MarkCanceled(_ context.Context, stripeID string, _ time.Time) error {
	s.canceled = append(s.canceled, stripeID)
	if sub, ok := s.byStripeID[stripeID]; ok {
		sub.Status = models.SubscriptionStatusCanceled
		s.byStripeID[stripeID] = sub
	}
	return nil
}

type processorFixture struct {
	processor     *Processor
	clients       *fakeClientStore
	payments      *fakePaymentStore
	subscriptions *fakeSubscriptionStore
	dedup         *memDeduper
}

func newProcessorFixture() processorFixture {
	clients := newFakeClientStore()
	payments := &fakePaymentStore{statuses: make(map[string]models.PaymentStatus)}
	subscriptions := newFakeSubscriptionStore()
	dedup := newMemDeduper()
	p := NewProcessor(testSecret, clients, payments, subscriptions, dedup, zerolog.Nop())
	return processorFixture{processor: p, clients: clients, payments: payments, subscriptions: subscriptions, dedup: dedup}
}

func TestProcessRejectsMissingSignature(t *testing.T) {
	f := newProcessorFixture()
	_, err := f.processor.Process(context.Background(), []byte(`{}`), "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProcessRejectsTamperedPayload(t *testing.T) {
	f := newProcessorFixture()
	payload := eventPayload("evt_1", "payment_intent.succeeded", `{"id":"pi_1","amount":5000}`)
	sig := signPayload(testSecret, payload)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'

	_, err := f.processor.Process(context.Background(), tampered, sig)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, f.payments.transitions)
}

func TestProcessRejectsWrongSecret(t *testing.T) {
	f := newProcessorFixture()
	payload := eventPayload("evt_1", "payment_intent.succeeded", `{"id":"pi_1"}`)
	sig := signPayload("whsec_other", payload)

	_, err := f.processor.Process(context.Background(), payload, sig)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProcessPaymentIntentSucceeded(t *testing.T) {
	f := newProcessorFixture()
	payload := eventPayload("evt_1", "payment_intent.succeeded",
		`{"id":"pi_1","amount":5000,"currency":"usd","payment_method_types":["card"]}`)

	result, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	require.Len(t, f.payments.transitions, 1)
	assert.Equal(t, "pi_1", f.payments.transitions[0].intentID)
	assert.Equal(t, models.PaymentStatusSucceeded, f.payments.transitions[0].to)
}

func TestProcessDuplicateEventShortCircuits(t *testing.T) {
	f := newProcessorFixture()
	payload := eventPayload("evt_dup", "payment_intent.succeeded", `{"id":"pi_1"}`)
	sig := signPayload(testSecret, payload)

	first, err := f.processor.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, first)

	second, err := f.processor.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, second)
	assert.Len(t, f.payments.transitions, 1)
}

func TestProcessReleasesClaimOnHandlerError(t *testing.T) {
	f := newProcessorFixture()
	f.payments.transitionErr = errors.New("db down")
	payload := eventPayload("evt_err", "payment_intent.succeeded", `{"id":"pi_1"}`)
	sig := signPayload(testSecret, payload)

	_, err := f.processor.Process(context.Background(), payload, sig)
	require.Error(t, err)
	assert.False(t, f.dedup.claimed["evt_err"], "failed event must release its dedup claim")

	f.payments.transitionErr = nil
	result, err := f.processor.Process(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
}

func TestProcessUnknownEventTypeIgnored(t *testing.T) {
	f := newProcessorFixture()
	payload := eventPayload("evt_1", "charge.dispute.created", `{"id":"dp_1"}`)

	result, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, result)
}

func TestProcessCheckoutCompletedLinksPendingPayment(t *testing.T) {
	f := newProcessorFixture()
	f.payments.attachMatched = true
	payload := eventPayload("evt_1", "checkout.session.completed", `{
		"id":"cs_1","mode":"payment","payment_intent":"pi_9","payment_status":"paid",
		"amount_total":250000,"currency":"usd",
		"customer_details":{"email":"client@example.com","name":"Client"}
	}`)

	result, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)

	require.Len(t, f.payments.attachCalls, 1)
	assert.Equal(t, [2]string{"cs_1", "pi_9"}, f.payments.attachCalls[0])
	require.Len(t, f.payments.transitions, 1)
	assert.Equal(t, models.PaymentStatusSucceeded, f.payments.transitions[0].to)
	assert.Empty(t, f.payments.upserts, "a linked session must not create a second payment")
	assert.Equal(t, []string{"client@example.com"}, f.clients.ensured)
}

func TestProcessCheckoutCompletedRecordsExternalPayment(t *testing.T) {
	f := newProcessorFixture()
	f.payments.attachMatched = false
	payload := eventPayload("evt_1", "checkout.session.completed", `{
		"id":"cs_ext","mode":"payment","payment_intent":"pi_ext","payment_status":"paid",
		"amount_total":90000,"currency":"usd",
		"customer_details":{"email":"walkin@example.com","name":"Walk-in"},
		"metadata":{"payment_type":"DEPOSIT"}
	}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)

	require.Len(t, f.payments.upserts, 1)
	payment := f.payments.upserts[0]
	assert.Equal(t, models.PaymentTypeDeposit, payment.PaymentType)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, int64(90000), payment.AmountCents)
	require.NotNil(t, payment.StripePaymentIntentID)
	assert.Equal(t, "pi_ext", *payment.StripePaymentIntentID)
	assert.Nil(t, payment.StripeCheckoutSessionID, "fallback rows upsert on the intent ID alone")
	assert.Equal(t, "cs_ext", payment.Metadata["checkout_session_id"])
}

func TestProcessCheckoutCompletedNormalizesEmail(t *testing.T) {
	f := newProcessorFixture()
	f.payments.attachMatched = true
	payload := eventPayload("evt_1", "checkout.session.completed", `{
		"id":"cs_1","mode":"payment","payment_intent":"pi_9","payment_status":"paid",
		"amount_total":250000,"currency":"usd",
		"customer_details":{"email":" Client@Example.COM ","name":"Client"}
	}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"client@example.com"}, f.clients.ensured)
}

func TestProcessSubscriptionCreatedLinksByMetadataEmail(t *testing.T) {
	f := newProcessorFixture()
	f.clients.clients["sub@example.com"] = models.Client{ID: "cl_7", Email: "sub@example.com"}
	payload := eventPayload("evt_1", "customer.subscription.created", `{
		"id":"sub_1","status":"active","cancel_at_period_end":false,
		"current_period_start":1700000000,"current_period_end":1702592000,
		"items":{"data":[{"price":{"unit_amount":150000,"currency":"usd"}}]},
		"metadata":{"client_email":"sub@example.com","product_type":"retainer"}
	}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)

	require.Len(t, f.subscriptions.upserts, 1)
	sub := f.subscriptions.upserts[0]
	assert.Equal(t, "cl_7", sub.ClientID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, int64(150000), sub.AmountCents)
	assert.Equal(t, "retainer", sub.ProductType)
}

func TestProcessSubscriptionForUnknownClientSkipped(t *testing.T) {
	f := newProcessorFixture()
	payload := eventPayload("evt_1", "customer.subscription.created", `{
		"id":"sub_x","status":"active","metadata":{"client_email":"nobody@example.com"}
	}`)

	result, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	assert.Empty(t, f.subscriptions.upserts)
	assert.Empty(t, f.clients.ensured, "webhooks must not create clients from subscription events")
}

func TestProcessSubscriptionDeleted(t *testing.T) {
	f := newProcessorFixture()
	f.subscriptions.byStripeID["sub_1"] = models.Subscription{
		ID: "s_1", ClientID: "cl_1", StripeSubscriptionID: "sub_1", Status: models.SubscriptionStatusActive,
	}
	payload := eventPayload("evt_1", "customer.subscription.deleted", `{"id":"sub_1","status":"canceled","canceled_at":1700000000}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1"}, f.subscriptions.canceled)
}

func TestProcessSubscriptionUpdateAfterCancellationKeepsCanceled(t *testing.T) {
	f := newProcessorFixture()
	f.subscriptions.byStripeID["sub_1"] = models.Subscription{
		ID: "s_1", ClientID: "cl_1", StripeSubscriptionID: "sub_1", Status: models.SubscriptionStatusCanceled,
	}
	f.clients.clients["sub@example.com"] = models.Client{ID: "cl_1", Email: "sub@example.com"}
	payload := eventPayload("evt_late", "customer.subscription.updated", `{
		"id":"sub_1","status":"active","metadata":{"client_email":"sub@example.com"}
	}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Empty(t, f.subscriptions.upserts, "a canceled subscription must not be revived by a stale update")
	assert.Equal(t, models.SubscriptionStatusCanceled, f.subscriptions.byStripeID["sub_1"].Status)
}

func TestProcessPaymentIntentReplayAfterRefundIsNoOp(t *testing.T) {
	f := newProcessorFixture()
	f.payments.statuses["pi_1"] = models.PaymentStatusRefunded

	// A fresh event ID models a redelivery that outlived the dedup key.
	payload := eventPayload("evt_replay", "payment_intent.succeeded",
		`{"id":"pi_1","amount":5000,"currency":"usd"}`)

	result, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result)
	assert.Empty(t, f.payments.transitions)
	assert.Equal(t, models.PaymentStatusRefunded, f.payments.statuses["pi_1"])
}

func TestProcessInvoicePaymentSucceeded(t *testing.T) {
	f := newProcessorFixture()
	f.subscriptions.byStripeID["sub_1"] = models.Subscription{
		ID: "s_1", ClientID: "cl_1", StripeSubscriptionID: "sub_1", Status: models.SubscriptionStatusActive,
	}
	payload := eventPayload("evt_1", "invoice.payment_succeeded", `{
		"id":"in_1","subscription":"sub_1","payment_intent":"pi_cycle",
		"amount_paid":150000,"currency":"usd"
	}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)

	require.Len(t, f.payments.upserts, 1)
	payment := f.payments.upserts[0]
	assert.Equal(t, models.PaymentTypeSubscription, payment.PaymentType)
	assert.Equal(t, "cl_1", payment.ClientID)
	require.NotNil(t, payment.SubscriptionID)
	assert.Equal(t, "s_1", *payment.SubscriptionID)
	require.NotNil(t, payment.StripePaymentIntentID)
	assert.Equal(t, "pi_cycle", *payment.StripePaymentIntentID)
}

func TestProcessInvoiceWithoutIntentFallsBackToInvoiceID(t *testing.T) {
	f := newProcessorFixture()
	f.subscriptions.byStripeID["sub_1"] = models.Subscription{
		ID: "s_1", ClientID: "cl_1", StripeSubscriptionID: "sub_1",
	}
	payload := eventPayload("evt_1", "invoice.payment_succeeded", `{
		"id":"in_free","subscription":"sub_1","amount_paid":0,"currency":"usd"
	}`)

	_, err := f.processor.Process(context.Background(), payload, signPayload(testSecret, payload))
	require.NoError(t, err)

	require.Len(t, f.payments.upserts, 1)
	require.NotNil(t, f.payments.upserts[0].StripePaymentIntentID)
	assert.Equal(t, "inv_in_free", *f.payments.upserts[0].StripePaymentIntentID)
}
