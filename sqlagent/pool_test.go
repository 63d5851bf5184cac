package sqlagent

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/askdb/nlsql"
)

type staticGenerator struct {
	reply string
	delay time.Duration
}

func (g *staticGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, nil
}

func newPool(t *testing.T, gen *staticGenerator, workers int) *Pool {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE products (product_id INTEGER PRIMARY KEY, product_name TEXT);
		INSERT INTO products VALUES (1, 'Chai'), (2, 'Chang');
	`)
	require.NoError(t, err)

	p := NewPool(nlsql.NewAgent(db, gen), workers)
	t.Cleanup(p.Close)
	return p
}

func TestPoolAnswers(t *testing.T) {
	p := newPool(t, &staticGenerator{reply: "SELECT COUNT(*) FROM products"}, 2)

	res, err := p.Answer(context.Background(), "how many products?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 2.", res.Answer)
}

func TestPoolConcurrentCallers(t *testing.T) {
	p := newPool(t, &staticGenerator{reply: "SELECT COUNT(*) FROM products"}, 2)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Answer(context.Background(), "count products")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPoolHonorsContext(t *testing.T) {
	p := newPool(t, &staticGenerator{reply: "SELECT COUNT(*) FROM products", delay: time.Second}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Answer(ctx, "slow question")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
