package cart

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(id string, price string, qty int) Line {
	return Line{
		ProductID: id,
		Name:      "product " + id,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func TestLines_Add(t *testing.T) {
	var ls Lines
	ls = ls.Add(line("p1", "10", 0))
	ls = ls.Add(line("p2", "5", 7))
	ls = ls.Add(line("p1", "10", 0))

	require.Len(t, ls, 2)
	assert.Equal(t, 2, ls.Quantity("p1"))
	assert.Equal(t, 1, ls.Quantity("p2"), "added lines always start at 1")
}

func TestLines_AddDoesNotMutateReceiver(t *testing.T) {
	before := Lines{line("p1", "10", 1)}
	after := before.Add(line("p1", "10", 0))

	assert.Equal(t, 1, before.Quantity("p1"))
	assert.Equal(t, 2, after.Quantity("p1"))
}

func TestLines_SetQuantity(t *testing.T) {
	ls := Lines{line("p1", "10", 3), line("p2", "4", 1)}

	tests := []struct {
		name    string
		qty     int
		wantLen int
		wantQty int
	}{
		{name: "positive sets value", qty: 5, wantLen: 2, wantQty: 5},
		{name: "zero removes line", qty: 0, wantLen: 1, wantQty: 0},
		{name: "negative clamps and removes", qty: -4, wantLen: 1, wantQty: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ls.SetQuantity("p1", tt.qty)
			assert.Len(t, got, tt.wantLen)
			assert.Equal(t, tt.wantQty, got.Quantity("p1"))
		})
	}
}

func TestLines_SetQuantityZeroIdempotent(t *testing.T) {
	ls := Lines{line("p1", "10", 3), line("p2", "4", 1)}

	once := ls.SetQuantity("p1", 0)
	twice := once.SetQuantity("p1", 0).SetQuantity("p1", 0)

	assert.Equal(t, once, twice)
}

func TestLines_Remove(t *testing.T) {
	ls := Lines{line("p1", "10", 9), line("p2", "4", 1)}

	got := ls.Remove("p1")
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ProductID)
	assert.Len(t, got.Remove("missing"), 1)
}

func TestLines_Total(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(Lines{}.Total()))
	assert.True(t, decimal.Zero.Equal(Lines(nil).Total()))

	ls := Lines{line("p1", "100", 2), line("p2", "0.15", 3)}
	assert.True(t, decimal.RequireFromString("200.45").Equal(ls.Total()))
}

func TestLines_Normalize(t *testing.T) {
	ls := Lines{
		line("p1", "10", 1),
		line("p2", "4", 0),
		line("p1", "10", 2),
		line("p3", "1", -1),
	}

	got := ls.Normalize()
	require.Len(t, got, 1)
	assert.Equal(t, 3, got.Quantity("p1"))
}

func TestLines_Validate(t *testing.T) {
	require.NoError(t, Lines{line("p1", "0", 1)}.Validate())
	require.ErrorIs(t, Lines{line("", "1", 1)}.Validate(), ErrProductRequired)
	require.ErrorIs(t, Lines{line("p1", "-1", 1)}.Validate(), ErrNegativePrice)
	require.NoError(t, Lines{line("p1", "12.50", 1), line("p2", "0.01", 3)}.Validate())
	require.ErrorIs(t, Lines{line("p1", "0.333", 3)}.Validate(), ErrPriceScale)
	require.ErrorIs(t, Lines{line("p1", "0.004", 1)}.Validate(), ErrPriceScale)
}

type mockCartRepo struct {
	stored *Cart
	err    error
}

func (m *mockCartRepo) Get(_ context.Context, ownerID string) (*Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.stored == nil || m.stored.OwnerID != ownerID {
		return &Cart{OwnerID: ownerID, Lines: Lines{}}, nil
	}
	return m.stored, nil
}

func (m *mockCartRepo) Replace(_ context.Context, c *Cart) error {
	if m.err != nil {
		return m.err
	}
	m.stored = c
	return nil
}

func (m *mockCartRepo) Delete(_ context.Context, _ string) error {
	m.stored = nil
	return m.err
}

func TestLine_JSONPriceIsNumber(t *testing.T) {
	data, err := json.Marshal(Lines{line("p1", "12.50", 2)})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"productId":"p1","name":"product p1","price":12.5,"quantity":2}]`, string(data))

	var back Lines
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 1)
	assert.True(t, decimal.RequireFromString("12.5").Equal(back[0].UnitPrice))

	var quoted Lines
	require.NoError(t, json.Unmarshal([]byte(`[{"productId":"p1","price":"0.10","quantity":1}]`), &quoted))
	assert.True(t, decimal.RequireFromString("0.1").Equal(quoted[0].UnitPrice))
}

func TestService_Replace(t *testing.T) {
	repo := &mockCartRepo{}
	svc := NewService(repo)

	c, err := svc.Replace(context.Background(), "u1", Lines{line("p1", "10", 1), line("p1", "10", 1)})
	require.NoError(t, err)
	assert.Equal(t, "u1", c.OwnerID)
	assert.Equal(t, 2, c.Lines.Quantity("p1"))
	assert.Same(t, c, repo.stored)

	_, err = svc.Replace(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrOwnerRequired)
}

func TestService_GetEmpty(t *testing.T) {
	svc := NewService(&mockCartRepo{})

	c, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestService_RepoError(t *testing.T) {
	svc := NewService(&mockCartRepo{err: errors.New("db down")})

	_, err := svc.Replace(context.Background(), "u1", Lines{line("p1", "1", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace cart")
}
