package service

import "context"

// Tee fans one fragment stream out to several consumers. The source is read
// exactly once; every fragment is delivered to every output in order. Tee
// owns the output channels and closes them when the source closes or ctx is
// cancelled, so consumers can simply range over them.
func Tee(ctx context.Context, src <-chan string, outs ...chan<- string) {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()
	for {
		select {
		case fragment, ok := <-src:
			if !ok {
				return
			}
			for _, out := range outs {
				select {
				case out <- fragment:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
