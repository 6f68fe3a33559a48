package mapping

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rideguardian/internal/apperrors"
)

type pair struct{ origin, destination string }

// Batch рассчитывает матрицу origins × destinations.
// Одинаковые пары внутри пакета разделяют один запрос. Сначала проверяется кэш,
// затем промахи отправляются провайдеру с ограниченным параллелизмом.
func (c *Cache) Batch(ctx context.Context, origins, destinations []string) ([][]Result, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return [][]Result{}, nil
	}

	cells := make([][]pair, len(origins))
	var unique []pair
	seen := make(map[pair]bool)
	for i, o := range origins {
		cells[i] = make([]pair, len(destinations))
		for j, d := range destinations {
			p := pair{NormalizeAddress(o), NormalizeAddress(d)}
			cells[i][j] = p
			if p.origin == "" || p.destination == "" || seen[p] {
				continue
			}
			seen[p] = true
			unique = append(unique, p)
		}
	}

	results := make(map[pair]Result, len(unique))
	var misses []pair

	// Phase 1: кэш
	for _, p := range unique {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Cancelled(err)
		}
		res, hit, err := c.fromCache(ctx, p.origin, p.destination)
		if err != nil {
			return nil, err
		}
		if hit {
			results[p] = res
			continue
		}
		misses = append(misses, p)
	}
	log.WithFields(log.Fields{"pairs": len(unique), "hits": len(unique) - len(misses)}).Info("Batch: проверка кэша завершена")

	// Phase 2: провайдер
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for _, p := range misses {
		p := p
		g.Go(func() error {
			cacheMissesTotal.Inc()
			res, err := c.resolve(gctx, p.origin, p.destination, true)
			if err != nil {
				return err
			}
			mu.Lock()
			results[p] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]Result, len(origins))
	for i := range cells {
		out[i] = make([]Result, len(destinations))
		for j, p := range cells[i] {
			out[i][j] = results[p]
		}
	}
	return out, nil
}
