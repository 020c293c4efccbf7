package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenestudio/internal/adapter/memstore"
	"scenestudio/internal/domain"
	"scenestudio/internal/imagegen"
)

type fakeEditor struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (e *fakeEditor) EditOnce(_ context.Context, source imagegen.SourceImage, _ string, _ bool, _ string, _ *int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.calls
	e.calls++
	if e.fail[n] {
		return "", errors.New("editor down")
	}
	return source.URL + "?edited", nil
}

func newService(t *testing.T, credits int, editor *fakeEditor) (*Service, *memstore.UserStore) {
	t.Helper()
	users := memstore.NewUserStore()
	users.Put(domain.User{ID: "u1", Credits: credits})
	return NewService(users, editor, nil, nil, zerolog.Nop()), users
}

func request(qty int) imagegen.Request {
	var req imagegen.Request
	req.Quantity = qty
	req.Prompt.SourceURL = "https://cdn.test/in.png"
	req.Prompt.Title = "Kopi susu"
	return req
}

func TestGenerateChargesPerImage(t *testing.T) {
	svc, users := newService(t, 5, &fakeEditor{})
	res, err := svc.Generate(context.Background(), "u1", request(2))
	require.NoError(t, err)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, 2, res.Charged)
	assert.Equal(t, 3, res.CreditsLeft)

	u, _ := users.GetUser(context.Background(), "u1")
	assert.Equal(t, 3, u.Credits)
}

func TestGenerateRefundsFailedImages(t *testing.T) {
	svc, users := newService(t, 5, &fakeEditor{fail: map[int]bool{1: true}})
	res, err := svc.Generate(context.Background(), "u1", request(3))
	require.NoError(t, err)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, 1, res.Refunded)
	assert.Equal(t, 3, res.CreditsLeft)

	u, _ := users.GetUser(context.Background(), "u1")
	assert.Equal(t, 3, u.Credits)
}

func TestGenerateAllFailedRefundsEverything(t *testing.T) {
	svc, users := newService(t, 2, &fakeEditor{fail: map[int]bool{0: true}})
	_, err := svc.Generate(context.Background(), "u1", request(1))
	assert.ErrorIs(t, err, domain.ErrProviderFailure)

	u, _ := users.GetUser(context.Background(), "u1")
	assert.Equal(t, 2, u.Credits)
}

func TestGenerateInsufficientCredits(t *testing.T) {
	editor := &fakeEditor{}
	svc, _ := newService(t, 1, editor)
	_, err := svc.Generate(context.Background(), "u1", request(2))
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Zero(t, editor.calls)
}

func TestGenerateValidatesInput(t *testing.T) {
	svc, _ := newService(t, 10, &fakeEditor{})
	_, err := svc.Generate(context.Background(), "u1", imagegen.Request{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.Generate(context.Background(), "u1", request(MaxQuantity+1))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
