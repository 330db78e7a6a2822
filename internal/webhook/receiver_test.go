package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

// recordingStore captures upserts and activity; the rest of store.Store is
// unused by the receiver.
type recordingStore struct {
	store.Store

	results   map[string]model.ResultRecord
	activity  []model.ActivityLogEntry
	upsertErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{results: make(map[string]model.ResultRecord)}
}

func (s *recordingStore) UpsertResult(_ context.Context, rec *model.ResultRecord) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.results[rec.CorrelationKey] = *rec
	return nil
}

func (s *recordingStore) AppendActivity(_ context.Context, entry *model.ActivityLogEntry) error {
	s.activity = append(s.activity, *entry)
	return nil
}

func TestReceiver_V8Success(t *testing.T) {
	st := newRecordingStore()
	r := NewReceiver(st)

	body := []byte(`{"documentNumber":"111.111.111-11","balance":1523.87,"status":"done"}`)
	rec, err := r.Process(context.Background(), model.ProviderV8, body)
	require.NoError(t, err)

	assert.Equal(t, "v8:11111111111", rec.CorrelationKey)
	assert.Equal(t, model.ResultStatusSuccess, rec.Status)
	require.NotNil(t, rec.Balance)
	assert.Equal(t, 1523.87, *rec.Balance)
	assert.JSONEq(t, string(body), string(rec.RawPayload))

	require.Len(t, st.activity, 1)
	assert.Equal(t, model.ActionWebhookReceived, st.activity[0].Action)
}

func TestReceiver_FactaError(t *testing.T) {
	st := newRecordingStore()
	r := NewReceiver(st)

	body := []byte(`{"cpf":"22222222222","erro":true,"mensagem":"CPF não autorizou consulta"}`)
	rec, err := r.Process(context.Background(), model.ProviderFacta, body)
	require.NoError(t, err)

	assert.Equal(t, "facta:22222222222", rec.CorrelationKey)
	assert.Equal(t, model.ResultStatusError, rec.Status)
	assert.Equal(t, "CPF não autorizou consulta", rec.Message)
	assert.Nil(t, rec.Balance)
}

func TestReceiver_C6Limit(t *testing.T) {
	st := newRecordingStore()
	r := NewReceiver(st)

	body := []byte(`{"document":"33333333333","limit":2500.00}`)
	rec, err := r.Process(context.Background(), model.ProviderC6, body)
	require.NoError(t, err)

	assert.Equal(t, "c6:33333333333", rec.CorrelationKey)
	assert.Equal(t, model.ResultStatusSuccess, rec.Status)
	assert.Equal(t, 2500.00, *rec.Balance)
}

func TestReceiver_DuplicateDeliveryOverwrites(t *testing.T) {
	st := newRecordingStore()
	r := NewReceiver(st)
	ctx := context.Background()

	first := []byte(`{"documentNumber":"11111111111","balance":100.0}`)
	_, err := r.Process(ctx, model.ProviderV8, first)
	require.NoError(t, err)

	second := []byte(`{"documentNumber":"11111111111","balance":250.0}`)
	_, err = r.Process(ctx, model.ProviderV8, second)
	require.NoError(t, err)

	require.Len(t, st.results, 1)
	got := st.results["v8:11111111111"]
	assert.Equal(t, 250.0, *got.Balance)
}

func TestReceiver_MalformedBody(t *testing.T) {
	r := NewReceiver(newRecordingStore())

	_, err := r.Process(context.Background(), model.ProviderV8, []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPayload))
}

func TestReceiver_MissingIdentifier(t *testing.T) {
	r := NewReceiver(newRecordingStore())

	// Right shape, wrong provider field: a facta callback sent to the v8
	// endpoint has no documentNumber.
	_, err := r.Process(context.Background(), model.ProviderV8, []byte(`{"cpf":"11111111111","saldo":10}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPayload))
}

func TestReceiver_NoBalanceNoError(t *testing.T) {
	st := newRecordingStore()
	r := NewReceiver(st)

	rec, err := r.Process(context.Background(), model.ProviderV8, []byte(`{"documentNumber":"11111111111","status":"processing"}`))
	require.NoError(t, err)
	assert.Equal(t, model.ResultStatusError, rec.Status)
	assert.Contains(t, rec.Message, "sem saldo nem erro")
}

func TestReceiver_StoreFailure(t *testing.T) {
	st := newRecordingStore()
	st.upsertErr = errors.New("disk full")
	r := NewReceiver(st)

	_, err := r.Process(context.Background(), model.ProviderV8, []byte(`{"documentNumber":"11111111111","balance":1}`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBadPayload))
}
