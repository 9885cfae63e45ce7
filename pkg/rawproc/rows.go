package rawproc

import(
	"context"
	"runtime"
	"sync"
)

// forRows runs f over every row in [0,h), in bands spread over the
// CPUs. It stops handing out bands once ctx is done, and reports why.
func forRows(ctx context.Context, h int, f func(y int)) error {
	const bandHeight = 64
	nWorkers := runtime.NumCPU()

	var wg sync.WaitGroup
	bands := make(chan int)
	for i:=0; i<nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y0 := range bands {
				for y := y0; y < y0+bandHeight && y < h; y++ {
					f(y)
				}
			}
		}()
	}

	var err error
	for y0 := 0; y0 < h; y0 += bandHeight {
		if err = ctx.Err(); err != nil {
			break
		}
		bands <- y0
	}
	close(bands)
	wg.Wait()
	return err
}
